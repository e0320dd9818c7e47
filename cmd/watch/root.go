package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ValentinKolb/sqc/cmd/util"
	"github.com/ValentinKolb/sqc/lib/codec"
	"github.com/ValentinKolb/sqc/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	sqClient      *client.Client
	eventGroups   []string
	channelFilter int64

	// WatchCommand prints server notifications until interrupted
	WatchCommand = &cobra.Command{
		Use:   "watch",
		Short: "Print server notifications",
		Long: `Registers for server notifications and prints them until interrupted
or until the connection ends. The cache of the session is kept current, so
clientmoved and channel events are printed with the affected entity.`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: setupWatchClient,
		RunE:              runWatch,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add connection flags to the watch command
	util.SetupClientFlags(WatchCommand)

	WatchCommand.Flags().StringSliceVar(&eventGroups, "events",
		[]string{client.EventsServer, client.EventsChannel, client.EventsTextServer, client.EventsTextChannel, client.EventsTextPrivate},
		util.WrapString("Event groups to register for (server, channel, textserver, textchannel, textprivate, tokenused)"))
	WatchCommand.Flags().Int64Var(&channelFilter, "channel", 0, util.WrapString("Channel to watch for the channel event group (0 for all channels)"))
}

// setupWatchClient connects the session
func setupWatchClient(cmd *cobra.Command, _ []string) (err error) {
	sqClient, err = util.SetupClient(cmd)
	return err
}

// forward hands events to the printing loop. Once stop is closed it drops
// them, so the dispatch goroutine never blocks on a loop that has returned.
func forward(events chan<- client.Event, stop <-chan struct{}) client.EventHandler {
	return func(ev client.Event) {
		select {
		case events <- ev:
		case <-stop:
		}
	}
}

// runWatch handles the watch command
func runWatch(cmd *cobra.Command, _ []string) error {
	events := make(chan client.Event, 64)
	stop := make(chan struct{})
	unsubscribe := sqClient.Subscribe(forward(events, stop))
	defer unsubscribe()
	defer close(stop)

	for _, group := range eventGroups {
		if err := sqClient.RegisterEvents(cmd.Context(), strings.TrimSpace(group), channelFilter); err != nil {
			return fmt.Errorf("failed to register for %s events: %v", group, err)
		}
	}

	// warm the cache so events can be resolved to entities
	if _, err := sqClient.Clients(cmd.Context()); err != nil {
		return err
	}
	if _, err := sqClient.Channels(cmd.Context()); err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	fmt.Fprintf(os.Stderr, "watching %s (ctrl+c to stop)\n", strings.Join(eventGroups, ", "))
	for {
		select {
		case ev := <-events:
			if err := printEvent(ev); err != nil {
				return err
			}
			if ev.Kind == client.EventClose {
				return ev.Err
			}
		case <-signals:
			return nil
		}
	}
}

// eventJSON is the --json form of an event
type eventJSON struct {
	Kind    string         `json:"kind"`
	Name    string         `json:"name,omitempty"`
	Records []codec.Record `json:"records,omitempty"`
	Node    *codec.Record  `json:"node,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func printEvent(ev client.Event) error {
	if viper.GetBool("json") {
		out := eventJSON{Kind: ev.Kind.String(), Name: ev.Name, Records: ev.Records}
		if ev.Node != nil {
			snapshot := ev.Node.Snapshot()
			out.Node = &snapshot
		}
		if ev.Err != nil {
			out.Error = ev.Err.Error()
		}
		return json.NewEncoder(util.Stdout).Encode(out)
	}

	switch ev.Kind {
	case client.EventNotify:
		line := ev.Name
		for _, r := range ev.Records {
			line += " " + r.String()
		}
		if ev.Node != nil {
			line += fmt.Sprintf(" [%s]", ev.Node)
		}
		_, err := fmt.Fprintln(util.Stdout, line)
		return err
	case client.EventError:
		_, err := fmt.Fprintf(util.Stdout, "error: %v\n", ev.Err)
		return err
	default:
		_, err := fmt.Fprintln(util.Stdout, "connection closed")
		return err
	}
}
