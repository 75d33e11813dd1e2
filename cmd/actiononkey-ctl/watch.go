package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type feedEnvelope struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

type feedTrigger struct {
	KeyCode uint16 `json:"key_code"`
	Command string `json:"command"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Source  string `json:"source"`
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream triggers from the daemon's websocket feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(feedURL(flagFeedURL, flagSource), cmd.OutOrStdout())
		},
	}
}

// feedURL adds the ?source= filter to the feed URL. A URL that does not parse
// is returned unchanged for watch to report.
func feedURL(rawURL, source string) string {
	if source == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("source", source)
	u.RawQuery = q.Encode()
	return u.String()
}

func watch(rawURL string, out io.Writer) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid feed URL: %w", err)
	}

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", u, err)
	}
	defer conn.Close()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if flagJSON {
			fmt.Fprintln(out, string(msg))
			continue
		}
		if err := printFeedMessage(out, msg); err != nil {
			fmt.Fprintf(out, "? %s\n", msg)
		}
	}
}

func printFeedMessage(out io.Writer, msg []byte) error {
	var env feedEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return err
	}
	switch env.Type {
	case "hello":
		var h struct {
			Name     string   `json:"name"`
			Device   string   `json:"device"`
			Executor string   `json:"executor"`
			KeyCodes []uint16 `json:"key_codes"`
		}
		if err := json.Unmarshal(env.Data, &h); err != nil {
			return err
		}
		fmt.Fprintf(out, "connected to %s (%s, %s executor, keys %v)\n", h.Name, h.Device, h.Executor, h.KeyCodes)
	case "trigger":
		var t feedTrigger
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s  key %-5d %-6s %s | %s: %s\n",
			env.Ts.Local().Format(time.TimeOnly), t.KeyCode, t.Source, t.Command, t.Title, t.Message)
	default:
		fmt.Fprintf(out, "%s %s\n", env.Type, env.Data)
	}
	return nil
}
