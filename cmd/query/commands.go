package query

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/sqc/cmd/util"
	"github.com/ValentinKolb/sqc/lib/cache"
	"github.com/ValentinKolb/sqc/lib/codec"
	"github.com/ValentinKolb/sqc/rpc/client"
	"github.com/spf13/cobra"
)

var (
	execCmd = &cobra.Command{
		Use:   "exec [command line]",
		Short: "Executes a raw command line",
		Long: `Executes a raw command line and prints the decoded records.
The arguments are joined by spaces, values must be escaped as on the wire
(e.g. "channelinfo cid=1" or "clientfind pattern=some\sname").`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := sqClient.ExecuteLine(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return util.PrintRecords(util.Stdout, records)
		},
	}
	whoamiCmd = &cobra.Command{
		Use:   "whoami",
		Short: "Shows information about the query session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := sqClient.Whoami(cmd.Context())
			if err != nil {
				return err
			}
			return util.PrintRecords(util.Stdout, []codec.Record{who})
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Shows the version of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := sqClient.Version(cmd.Context())
			if err != nil {
				return err
			}
			return util.PrintRecords(util.Stdout, []codec.Record{version})
		},
	}
	clientsCmd       = listCommand("clients", "Lists the clients of the selected server", (*client.Client).Clients)
	channelsCmd      = listCommand("channels", "Lists the channels of the selected server", (*client.Client).Channels)
	serversCmd       = listCommand("servers", "Lists the virtual servers", (*client.Client).Servers)
	serverGroupsCmd  = listCommand("servergroups", "Lists the server groups of the selected server", (*client.Client).ServerGroups)
	channelGroupsCmd = listCommand("channelgroups", "Lists the channel groups of the selected server", (*client.Client).ChannelGroups)

	messageCmd = &cobra.Command{
		Use:   "message [server|channel|client] [target] [text]",
		Short: "Sends a text message",
		Long:  "Sends a text message to the whole server, a channel or a client. The target is ignored for server messages.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			modes := map[string]int{"client": client.TargetClient, "channel": client.TargetChannel, "server": client.TargetServer}
			mode, ok := modes[args[0]]
			if !ok {
				return fmt.Errorf("invalid target mode %q, must be one of %s", args[0], strings.Join(util.SortedKeys(modes), ", "))
			}
			target, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("target must be a number: %w", err)
			}
			if err := sqClient.SendTextMessage(cmd.Context(), mode, target, args[2]); err != nil {
				return err
			}
			fmt.Fprintln(util.Stdout, "message sent")
			return nil
		},
	}
	moveCmd = &cobra.Command{
		Use:   "move [clid] [cid]",
		Short: "Moves a client into a channel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			clid, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("clid must be a number: %w", err)
			}
			cid, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("cid must be a number: %w", err)
			}
			password, _ := cmd.Flags().GetString("channel-password")
			if err := sqClient.ClientMove(cmd.Context(), clid, cid, password); err != nil {
				return err
			}
			fmt.Fprintln(util.Stdout, "moved successfully")
			return nil
		},
	}
)

func init() {
	moveCmd.Flags().String("channel-password", "", util.WrapString("Password of the target channel"))
}

// listCommand builds a command printing one cached namespace
func listCommand(use, short string, list func(*client.Client, context.Context) ([]*cache.Node, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := list(sqClient, cmd.Context())
			if err != nil {
				return err
			}
			return util.PrintNodes(util.Stdout, nodes)
		},
	}
}
