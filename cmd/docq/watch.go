package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/alfredjeanlab/docq/internal/client"
	"github.com/alfredjeanlab/docq/internal/events"
	"github.com/alfredjeanlab/docq/internal/ui"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [topic-pattern...]",
	Short: "Stream document and query events",
	Long: `Stream events as they happen.

Patterns use NATS syntax, e.g. "docq.document.*" or "docq.query.>". With a
NATS URL (--nats, DOCQ_NATS_URL, or the active remote) events come straight
from NATS; otherwise the server's event stream is followed over HTTP, which
only shows events visible to the caller.`,
	GroupID: "queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			natsURL = os.Getenv("DOCQ_NATS_URL")
		}
		if natsURL == "" {
			r, _ := activeRemote()
			natsURL = r.NATSURL
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		if natsURL != "" {
			return watchNATS(ctx, out, natsURL, args)
		}
		httpClient, ok := api.(*client.HTTPClient)
		if !ok {
			return fmt.Errorf("event streaming requires the HTTP client")
		}
		return httpClient.StreamEvents(ctx, args, "", func(e client.Event) error {
			printEvent(out, e.Topic, e.Data)
			return nil
		})
	},
}

// watchNATS prints every message on the given patterns (default docq.>).
func watchNATS(ctx context.Context, out io.Writer, natsURL string, patterns []string) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("nats reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	if len(patterns) == 0 {
		patterns = []string{events.TopicAll}
	}
	merged := make(chan events.Message)
	for _, p := range patterns {
		ch, cancel, err := sub.Subscribe(p)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", p, err)
		}
		defer cancel()
		go func() {
			for msg := range ch {
				select {
				case merged <- msg:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-merged:
			printEvent(out, msg.Topic, msg.Data)
		}
	}
}

func printEvent(out io.Writer, topic string, data []byte) {
	if jsonOutput {
		fmt.Fprintf(out, "{\"topic\":%q,\"data\":%s}\n", topic, data)
		return
	}
	fmt.Fprintf(out, "%s %s %s\n", ui.RenderMuted(time.Now().Format("15:04:05")), ui.RenderAccent(topic), data)
}

func init() {
	watchCmd.Flags().String("nats", "", "NATS URL to subscribe to directly")
}
