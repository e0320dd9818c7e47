package ft

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ValentinKolb/sqc/cmd/util"
	"github.com/ValentinKolb/sqc/rpc/client"
	"github.com/ValentinKolb/sqc/rpc/filetransfer"
	"github.com/spf13/cobra"
)

var (
	sqClient        *client.Client
	channelPassword string
	overwrite       bool

	// FileTransferCommands represents the file transfer command group
	FileTransferCommands = &cobra.Command{
		Use:               "ft",
		Short:             "Transfer files to and from channel file repositories",
		PersistentPreRunE: setupFTClient,
	}

	uploadCmd = &cobra.Command{
		Use:   "upload [cid] [local file] [remote path]",
		Short: "Uploads a local file into a channel",
		Args:  cobra.ExactArgs(3),
		RunE:  runUpload,
	}

	downloadCmd = &cobra.Command{
		Use:   "download [cid] [remote path] [local file]",
		Short: "Downloads a file of a channel",
		Args:  cobra.ExactArgs(3),
		RunE:  runDownload,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add subcommands to ft command
	FileTransferCommands.AddCommand(uploadCmd)
	FileTransferCommands.AddCommand(downloadCmd)

	// Add connection flags to the ft command
	util.SetupClientFlags(FileTransferCommands)

	FileTransferCommands.PersistentFlags().StringVar(&channelPassword, "channel-password", "", util.WrapString("Password of the channel"))
	uploadCmd.Flags().BoolVar(&overwrite, "overwrite", false, util.WrapString("Overwrite an existing remote file"))
}

// setupFTClient connects the session used to prepare transfers
func setupFTClient(cmd *cobra.Command, _ []string) (err error) {
	sqClient, err = util.SetupClient(cmd)
	return err
}

// runUpload handles the upload command
func runUpload(cmd *cobra.Command, args []string) error {
	cid, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("cid must be a number: %w", err)
	}

	file, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}

	ticket, err := sqClient.FTInitUpload(cmd.Context(), client.TransferRequest{
		ChannelID: cid,
		Path:      args[2],
		Password:  channelPassword,
		Size:      info.Size(),
		Overwrite: overwrite,
	})
	if err != nil {
		return fmt.Errorf("failed to prepare upload: %v", err)
	}

	n, err := filetransfer.Upload(cmd.Context(), ticket, file)
	if err != nil {
		return fmt.Errorf("upload failed after %d bytes: %v", n, err)
	}
	fmt.Fprintf(util.Stdout, "uploaded %d bytes to %s\n", n, args[2])
	return nil
}

// runDownload handles the download command
func runDownload(cmd *cobra.Command, args []string) error {
	cid, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("cid must be a number: %w", err)
	}

	ticket, err := sqClient.FTInitDownload(cmd.Context(), client.TransferRequest{
		ChannelID: cid,
		Path:      args[1],
		Password:  channelPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to prepare download: %v", err)
	}

	file, err := os.Create(args[2])
	if err != nil {
		return err
	}
	defer file.Close()

	n, err := filetransfer.Download(cmd.Context(), ticket, file)
	if err != nil {
		return fmt.Errorf("download failed after %d bytes: %v", n, err)
	}
	fmt.Fprintf(util.Stdout, "downloaded %d bytes to %s\n", n, args[2])
	return nil
}
