package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// Wire types (duplicated from the daemon for a standalone binary)

type actionListing struct {
	KeyCode uint16 `json:"key_code"`
	Command string `json:"command"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type statusReport struct {
	Name       string `json:"name"`
	Device     string `json:"device"`
	Uptime     string `json:"uptime"`
	Dispatcher struct {
		Events      uint64 `json:"events"`
		Ignored     uint64 `json:"ignored"`
		Unmatched   uint64 `json:"unmatched"`
		Triggers    uint64 `json:"triggers"`
		LastKeyCode uint16 `json:"last_key_code"`
		LastAt      string `json:"last_at"`
	} `json:"dispatcher"`
	Executor struct {
		Kind      string `json:"kind"`
		Submitted uint64 `json:"submitted"`
		Failed    uint64 `json:"failed"`
		Pending   int    `json:"pending"`
		InFlight  int64  `json:"in_flight"`
	} `json:"executor"`
}

func newTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <key-code>",
		Short: "Run the action bound to a key code as if it had been pressed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := parseKeyCode(args[0])
			if err != nil {
				return err
			}
			if _, err := request(flagSocket, "trigger", map[string]int{"key_code": code}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "triggered %d\n", code)
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured key actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := request(flagSocket, "list", nil)
			if err != nil {
				return err
			}
			if flagJSON {
				return printRaw(cmd.OutOrStdout(), data)
			}
			var rows []actionListing
			if err := json.Unmarshal(data, &rows); err != nil {
				return fmt.Errorf("decode list: %w", err)
			}
			return printListing(cmd.OutOrStdout(), rows)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := request(flagSocket, "status", nil)
			if err != nil {
				return err
			}
			if flagJSON {
				return printRaw(cmd.OutOrStdout(), data)
			}
			var st statusReport
			if err := json.Unmarshal(data, &st); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func parseKeyCode(s string) (int, error) {
	code, err := strconv.ParseInt(s, 0, 32)
	if err != nil || code <= 0 || code > 0xffff {
		return 0, fmt.Errorf("invalid key code %q", s)
	}
	return int(code), nil
}

func printRaw(w io.Writer, data json.RawMessage) error {
	_, err := fmt.Fprintln(w, string(data))
	return err
}

func printListing(w io.Writer, rows []actionListing) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tCOMMAND\tTITLE\tMESSAGE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.KeyCode, r.Command, r.Title, r.Message)
	}
	return tw.Flush()
}

func printStatus(w io.Writer, st statusReport) {
	fmt.Fprintf(w, "name:      %s\n", st.Name)
	fmt.Fprintf(w, "device:    %s\n", st.Device)
	fmt.Fprintf(w, "uptime:    %s\n", st.Uptime)
	fmt.Fprintf(w, "events:    %d (ignored %d, unmatched %d)\n", st.Dispatcher.Events, st.Dispatcher.Ignored, st.Dispatcher.Unmatched)
	fmt.Fprintf(w, "triggers:  %d\n", st.Dispatcher.Triggers)
	if st.Dispatcher.LastAt != "" {
		fmt.Fprintf(w, "last:      key %d at %s\n", st.Dispatcher.LastKeyCode, st.Dispatcher.LastAt)
	}
	fmt.Fprintf(w, "executor:  %s (submitted %d, failed %d, pending %d, running %d)\n",
		st.Executor.Kind, st.Executor.Submitted, st.Executor.Failed, st.Executor.Pending, st.Executor.InFlight)
}

