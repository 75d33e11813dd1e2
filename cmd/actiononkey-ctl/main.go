package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ============================================================================
// actiononkey-ctl - command-line client for the actiononkey daemon
// ============================================================================
//
//	actiononkey-ctl trigger 289      simulate a press of key 289
//	actiononkey-ctl list             show configured actions
//	actiononkey-ctl status           show dispatcher/executor counters
//	actiononkey-ctl watch            stream triggers from the websocket feed
// ============================================================================

var version = "1.0.0"

var (
	flagSocket  string
	flagFeedURL string
	flagSource  string
	flagJSON    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "actiononkey-ctl",
		Short:         "Control a running actiononkey daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagSocket, "socket", "s", defaultSocketPath(), "Unix domain socket of the daemon")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print raw JSON responses")

	watch := newWatchCmd()
	watch.Flags().StringVar(&flagFeedURL, "url", "ws://127.0.0.1:3011/ws/triggers", "Trigger feed websocket URL")
	watch.Flags().StringVar(&flagSource, "source", "", "Only show triggers from this source (device or ipc)")

	root.AddCommand(newTriggerCmd(), newListCmd(), newStatusCmd(), watch)
	return root
}

// defaultSocketPath prefers the user runtime dir, where the session unit
// normally puts the socket.
func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/actiononkey.sock"
	}
	return "/tmp/actiononkey.sock"
}
