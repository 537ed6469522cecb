package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/traeumen927/chatGPT-sub000/pkg/config"
	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
	"github.com/traeumen927/chatGPT-sub000/pkg/providers"
	"github.com/traeumen927/chatGPT-sub000/pkg/userinfo"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func buildRootCommand() *cobra.Command {
	opts := &rootOptions{}
	var showVersion bool

	root := &cobra.Command{
		Use:   appName,
		Short: "Personalized ChatGPT client with remembered preferences and profile facts",
		Long: strings.TrimSpace(`chatgpt is a terminal ChatGPT client.

It remembers what you like and avoid, learns stable facts about you from past
conversations, keeps a rolling summarized history, and can serve the same
chat core over a Discord gateway.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "Path to the config file")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(newOnboardCommand(opts))
	root.AddCommand(newChatCommand(opts))
	root.AddCommand(newModelsCommand(opts))
	root.AddCommand(newConversationsCommand(opts))
	root.AddCommand(newPrefsCommand(opts))
	root.AddCommand(newProfileCommand(opts))
	root.AddCommand(newGatewayCommand(opts))
	root.AddCommand(newVersionCommand())
	return root
}

func (o *rootOptions) open(withProvider bool) (*app, error) {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.debug {
		cfg.Log.Level = "debug"
		logger.SetLevel(logger.DEBUG)
	}
	if withProvider {
		if err := providers.ValidateConfig(cfg); err != nil {
			return nil, fmt.Errorf("%w (set providers.openai.api_key in %s)", err, o.configPath)
		}
	}
	return openApp(cfg, withProvider)
}

func newOnboardCommand(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "onboard",
		Short:   "Create the default config and workspace",
		Example: "  chatgpt onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if _, err := os.Stat(opts.configPath); err == nil && !force {
				fmt.Fprintf(out, "Config already exists at %s (use --force to overwrite)\n", opts.configPath)
				return nil
			}
			cfg := config.DefaultConfig()
			if err := config.SaveConfig(opts.configPath, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.UploadsPath(), 0o755); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Config written to %s\n", opts.configPath)
			fmt.Fprintf(out, "✓ Workspace ready at %s\n", cfg.WorkspacePath())
			fmt.Fprintln(out, "Next: add your OpenAI API key to providers.openai.api_key, then run `chatgpt chat`.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config")
	return cmd
}

func newChatCommand(opts *rootOptions) *cobra.Command {
	var (
		message      string
		attachments  []string
		model        string
		conversation string
		stream       bool
		noStream     bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the model interactively or send a one-shot prompt",
		Example: strings.Join([]string{
			"  chatgpt chat",
			"  chatgpt chat -m \"사과를 좋아해\"",
			"  chatgpt chat -m \"what is in this picture?\" -a photo.png",
			"  chatgpt chat --conversation 3f1c... --model gpt-4.1",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(true)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.currentUser()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			orch, err := a.newOrchestrator(ctx, a.session, user.UID)
			if err != nil {
				return err
			}
			defer orch.Close()

			if conversation != "" {
				if err := orch.LoadConversation(ctx, conversation); err != nil {
					return err
				}
			}

			useStream := a.cfg.Chat.Stream
			if cmd.Flags().Changed("stream") {
				useStream = stream
			}
			if noStream {
				useStream = false
			}

			r := &repl{orch: orch, app: a, out: cmd.OutOrStdout(), model: model, stream: useStream}
			if strings.TrimSpace(message) != "" {
				files, err := readAttachments(attachments)
				if err != nil {
					return err
				}
				r.pending = files
				err = r.send(ctx, message)
				orch.Wait()
				return err
			}

			sched, err := a.startRefresh(ctx)
			if err != nil {
				return err
			}
			defer sched.Stop()
			return r.run(ctx)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "One-shot prompt")
	cmd.Flags().StringSliceVarP(&attachments, "attach", "a", nil, "Files to attach to the one-shot prompt")
	cmd.Flags().StringVar(&model, "model", "", "Model override for this session")
	cmd.Flags().StringVar(&conversation, "conversation", "", "Continue a saved conversation by id")
	cmd.Flags().BoolVar(&stream, "stream", true, "Stream replies as they are generated")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for complete replies")
	return cmd
}

func newModelsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "models",
		Short:   "List the models available to your API key",
		Example: "  chatgpt models",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := providers.Execute(ctx, a.provider, providers.ModelsRequest{})
			if err != nil {
				return err
			}
			for _, m := range res.Models {
				marker := " "
				if m == a.cfg.Chat.Model {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, m)
			}
			return nil
		},
	}
}

func newConversationsCommand(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage saved conversations",
	}

	root.AddCommand(&cobra.Command{
		Use:     "list",
		Short:   "List saved conversations, most recent first",
		Example: "  chatgpt conversations list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(opts, func(a *app, uid string) error {
				list, err := a.db.Conversations(uid).ListConversations(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No conversations yet.")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tUPDATED\tTITLE")
				for _, c := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Timestamp.Format("2006-01-02 15:04"), c.Title)
				}
				return tw.Flush()
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "show <id>",
		Short:   "Print a saved conversation",
		Args:    cobra.ExactArgs(1),
		Example: "  chatgpt conversations show 3f1c...",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(opts, func(a *app, uid string) error {
				msgs, err := a.db.Conversations(uid).FetchMessages(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, m := range msgs {
					fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Text)
					for _, u := range m.URLs {
						fmt.Fprintf(out, "    %s\n", u)
					}
				}
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "rename <id> <title>",
		Short:   "Rename a saved conversation",
		Args:    cobra.MinimumNArgs(2),
		Example: "  chatgpt conversations rename 3f1c... \"Trip planning\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(opts, func(a *app, uid string) error {
				title := strings.TrimSpace(strings.Join(args[1:], " "))
				if title == "" {
					return fmt.Errorf("title must not be empty")
				}
				if err := a.db.Conversations(uid).UpdateTitle(cmd.Context(), args[0], title); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Renamed %s\n", args[0])
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "delete <id>",
		Short:   "Delete a saved conversation",
		Args:    cobra.ExactArgs(1),
		Example: "  chatgpt conversations delete 3f1c...",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(opts, func(a *app, uid string) error {
				if err := a.db.Conversations(uid).DeleteConversation(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", args[0])
				return nil
			})
		},
	})
	return root
}

func newPrefsCommand(opts *rootOptions) *cobra.Command {
	var top int
	root := &cobra.Command{
		Use:     "prefs",
		Short:   "Show remembered preferences",
		Example: "  chatgpt prefs --top 10",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(opts, func(a *app, uid string) error {
				svc := a.preferences(uid)
				pairs, err := svc.Top(cmd.Context(), top)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(pairs) == 0 {
					fmt.Fprintln(out, "No preferences recorded yet.")
					return nil
				}
				fmt.Fprintln(out, "Ranked preferences:")
				for i, p := range pairs {
					fmt.Fprintf(out, "  %d. %s %s\n", i+1, p.Relation, p.Key)
				}

				statuses, err := svc.Statuses(cmd.Context())
				if err != nil {
					return err
				}
				var changed []string
				for _, st := range statuses {
					if st.HasPrevious() {
						changed = append(changed, fmt.Sprintf("  %s: %s → %s (%s)",
							st.Key, st.Previous, st.Current, time.Unix(st.ChangedAt, 0).Format("2006-01-02")))
					}
				}
				if len(changed) > 0 {
					fmt.Fprintln(out, "Changed:")
					fmt.Fprintln(out, strings.Join(changed, "\n"))
				}
				return nil
			})
		},
	}
	root.Flags().IntVarP(&top, "top", "n", 0, "Number of preferences to show (default from config)")

	root.AddCommand(&cobra.Command{
		Use:     "forget <key>",
		Short:   "Forget everything recorded about a key",
		Args:    cobra.ExactArgs(1),
		Example: "  chatgpt prefs forget 사과",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(opts, func(a *app, uid string) error {
				if err := a.preferences(uid).Forget(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Forgot %s\n", args[0])
				return nil
			})
		},
	})
	return root
}

func newProfileCommand(opts *rootOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show facts remembered about you",
		Example: strings.Join([]string{
			"  chatgpt profile",
			"  chatgpt profile --refresh",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(refresh)
			if err != nil {
				return err
			}
			defer a.Close()
			user, err := a.currentUser()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var refreshed userinfo.Profile
			if refresh {
				if _, refreshed, err = a.refreshFacts(ctx, user.UID); err != nil {
					return err
				}
			}
			info, err := a.db.UserInfo(user.UID).Fetch(ctx)
			if err != nil {
				return err
			}
			info = userinfo.FilterExpired(info, a.cfg.FactTTL(), time.Now())

			out := cmd.OutOrStdout()
			if len(info) == 0 {
				fmt.Fprintln(out, "No facts remembered yet.")
				return nil
			}
			profile := userinfo.MergeProfile(userinfo.ProfileFromInfo(info), refreshed)
			if summary := profile.String(); summary != "" {
				fmt.Fprintf(out, "Profile: %s\n", summary)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tVALUE\tCOUNT\tLAST MENTIONED")
			for _, key := range sortedKeys(info) {
				for _, f := range info[key] {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", key, f.Value, f.Count, time.Unix(f.LastMentioned, 0).Format("2006-01-02"))
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Analyze recent messages before showing")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  chatgpt version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}

func withUser(opts *rootOptions, fn func(a *app, uid string) error) error {
	a, err := opts.open(false)
	if err != nil {
		return err
	}
	defer a.Close()
	user, err := a.currentUser()
	if err != nil {
		return err
	}
	return fn(a, user.UID)
}
