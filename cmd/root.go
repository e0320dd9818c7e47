package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/sqc/cmd/ft"
	"github.com/ValentinKolb/sqc/cmd/query"
	"github.com/ValentinKolb/sqc/cmd/util"
	"github.com/ValentinKolb/sqc/cmd/watch"
	"github.com/ValentinKolb/sqc/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.4.2"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "sqc",
		Short: "ServerQuery client",
		Long: fmt.Sprintf(`sqc (v%s)

A client for the line based ServerQuery administration interface,
speaking the raw protocol or the ssh shell variant.`, Version),
		SilenceUsage:       true,
		PersistentPostRunE: finish,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sqc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sqc v%s\n", Version)
		},
	}
)

func init() {
	// Logs go to stderr, results to stdout
	common.SetLogOutput(os.Stderr)

	// Add Commands
	RootCmd.AddCommand(query.QueryCommands)
	RootCmd.AddCommand(watch.WatchCommand)
	RootCmd.AddCommand(ft.FileTransferCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("log level (debug, info, warn, error)"))
	key = "metrics"
	RootCmd.PersistentFlags().Bool(key, false, util.WrapString("print client metrics in the Prometheus text format to stderr when the command is done"))
}

// finish closes the session of the command and dumps the metrics if requested
func finish(cmd *cobra.Command, _ []string) error {
	err := util.CloseClient()
	if viper.GetBool("metrics") {
		util.WriteMetrics(os.Stderr)
	}
	return err
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	err := RootCmd.Execute()
	// a failed command skips the post run hook
	_ = util.CloseClient()
	if err != nil {
		os.Exit(1)
	}
}
