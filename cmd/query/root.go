package query

import (
	"github.com/ValentinKolb/sqc/cmd/util"
	"github.com/ValentinKolb/sqc/rpc/client"
	"github.com/spf13/cobra"
)

var (
	sqClient *client.Client

	// QueryCommands represents the query command group
	QueryCommands = &cobra.Command{
		Use:               "query",
		Short:             "Execute query commands",
		PersistentPreRunE: setupQueryClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add connection flags to the query command
	util.SetupClientFlags(QueryCommands)

	// Add subcommands
	QueryCommands.AddCommand(execCmd)
	QueryCommands.AddCommand(whoamiCmd)
	QueryCommands.AddCommand(versionCmd)
	QueryCommands.AddCommand(clientsCmd)
	QueryCommands.AddCommand(channelsCmd)
	QueryCommands.AddCommand(serversCmd)
	QueryCommands.AddCommand(serverGroupsCmd)
	QueryCommands.AddCommand(channelGroupsCmd)
	QueryCommands.AddCommand(messageCmd)
	QueryCommands.AddCommand(moveCmd)
	QueryCommands.AddCommand(perfTestCmd)
}

// setupQueryClient connects the session used by all query commands
func setupQueryClient(cmd *cobra.Command, _ []string) (err error) {
	sqClient, err = util.SetupClient(cmd)
	return err
}
