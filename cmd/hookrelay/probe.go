package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lhdbsbz/hookrelay/internal/apperr"
	"github.com/lhdbsbz/hookrelay/internal/upload"
	"github.com/lhdbsbz/hookrelay/internal/webhook"
	"github.com/spf13/cobra"
)

func newProbeCmd(configPath *string) *cobra.Command {
	var sessionID string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "probe <text>",
		Short: "Send one chat turn to the webhook and print the normalized reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			gw, err := webhook.New(cfg.Webhook)
			if err != nil {
				return err
			}
			if sessionID == "" {
				sessionID = fmt.Sprintf("probe-%d", time.Now().UnixMilli())
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "POST %s\n", gw.Endpoint())
			reply, err := gw.Relay(ctx, webhook.Envelope{
				Message:     strings.Join(args, " "),
				SessionID:   sessionID,
				Attachments: []upload.File{},
			})
			if err != nil {
				var e *apperr.Error
				if errors.As(err, &e) {
					fmt.Fprintf(out, "kind:   %s\n", e.Kind)
					if e.StatusCode != 0 {
						fmt.Fprintf(out, "status: %d\n", e.StatusCode)
					}
					if e.Body != "" {
						fmt.Fprintf(out, "body:   %s\n", e.Body)
					}
				}
				return err
			}

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(reply)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to send (default probe-<unix ms>)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up after this long (0 waits indefinitely)")
	return cmd
}
