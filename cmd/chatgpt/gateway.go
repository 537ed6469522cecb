package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/traeumen927/chatGPT-sub000/pkg/auth"
	"github.com/traeumen927/chatGPT-sub000/pkg/bus"
	"github.com/traeumen927/chatGPT-sub000/pkg/channels"
	"github.com/traeumen927/chatGPT-sub000/pkg/chat"
	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
)

func newGatewayCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Serve the chat over the configured channels (Discord)",
		Example: "  chatgpt gateway\n" +
			"  CHATGPT_CHANNELS_DISCORD_TOKEN=... chatgpt gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			mb := bus.NewMessageBus()
			defer mb.Close()

			manager, err := channels.NewManagerFromConfig(a.cfg, mb)
			if err != nil {
				return err
			}

			gw := chat.NewGateway(mb, func(user auth.User) (*chat.Orchestrator, error) {
				sess := auth.NewSession()
				sess.SignIn(user)
				orch, err := a.newOrchestrator(ctx, sess, user.UID)
				if err != nil {
					sess.Close()
					return nil, err
				}
				a.onClose(sess.Close)
				return orch, nil
			})

			sched, err := a.startRefresh(ctx)
			if err != nil {
				return err
			}
			defer sched.Stop()

			if err := manager.StartAll(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Gateway started on %v\n", manager.EnabledChannels())
			fmt.Fprintln(out, "Press Ctrl+C to stop")

			runErr := gw.Run(ctx)

			stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer stopCancel()
			if err := manager.StopAll(stopCtx); err != nil {
				logger.WarnCF("gateway", "Failed to stop channels", map[string]any{"error": err.Error()})
			}
			fmt.Fprintln(out, "✓ Gateway stopped")
			return runErr
		},
	}
}
