package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/discordweb/auth"
	"github.com/hazyhaar/discordweb/dbopen"
	"github.com/hazyhaar/discordweb/kit"
	"github.com/hazyhaar/discordweb/observability"
	"github.com/hazyhaar/discordweb/tools"
)

func newServeCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools over stdio (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, f)
		},
	}
}

func runServe(cmd *cobra.Command, f *flags) error {
	a, err := setup(cmd, f)
	if err != nil {
		return err
	}
	defer a.close()

	srv := a.service.NewServer(a.middlewares()...)
	a.logger.Info("serving MCP over stdio",
		"version", tools.Implementation.Version,
		"policy", a.cfg.SessionPolicy,
		"headless", a.cfg.Headless,
		"audit", a.cfg.AuditDB != "",
	)
	err = srv.Run(cmd.Context(), &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	a.logger.Info("MCP server stopped")
	return nil
}

// call runs one tool endpoint from the command line through the same
// middleware as the MCP transport and prints the JSON result.
func call(cmd *cobra.Command, f *flags, tool string, args any, endpoint func(context.Context, *tools.Service) (any, error)) error {
	a, err := setup(cmd, f)
	if err != nil {
		return err
	}
	defer a.close()

	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	ctx := kit.WithTransport(cmd.Context(), "cli")
	ctx = kit.WithTool(ctx, tool)
	ctx = kit.WithRequestID(ctx, kit.RequestIDs())
	ctx = kit.WithArguments(ctx, raw)

	ep := kit.Chain(a.middlewares()...)(func(ctx context.Context, _ any) (any, error) {
		return endpoint(ctx, a.service)
	})
	out, err := ep(ctx, args)
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLoginCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in once and save the session file",
		Long: `login opens the web client, logs in with the configured credentials and
saves the session file. Run it with --headless=false when Discord asks for
an email verification: the command waits while the link is confirmed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, f)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.client.Login(cmd.Context())
			if res.Status == auth.StatusVerificationRequired {
				fmt.Fprintln(cmd.ErrOrStderr(), "email verification required: confirm the link and run login again")
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"status":       res.Status.String(),
				"fresh":        res.Fresh,
				"session_file": a.cfg.SessionFile,
			})
		},
	}
}

func newGuildsCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "guilds",
		Short: "List the servers of the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd, f, "get_servers", struct{}{}, func(ctx context.Context, s *tools.Service) (any, error) {
				return s.Servers(ctx)
			})
		},
	}
}

func newChannelsCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "channels <server_id>",
		Short: "List the text channels of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &tools.ChannelsRequest{ServerID: args[0]}
			return call(cmd, f, "get_channels", req, func(ctx context.Context, s *tools.Service) (any, error) {
				return s.Channels(ctx, req)
			})
		},
	}
}

func newMessagesCmd(f *flags) *cobra.Command {
	var (
		hours, limit int
		summary      bool
	)
	cmd := &cobra.Command{
		Use:   "messages <server_id> <channel_id>",
		Short: "Read the recent messages of a channel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &tools.MessagesRequest{ServerID: args[0], ChannelID: args[1], Summary: summary}
			if cmd.Flags().Changed("hours") {
				req.HoursBack = &hours
			}
			if cmd.Flags().Changed("max") {
				req.MaxMessages = &limit
			}
			return call(cmd, f, "read_messages", req, func(ctx context.Context, s *tools.Service) (any, error) {
				return s.Messages(ctx, req)
			})
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 0, "look back this many hours (default from config)")
	cmd.Flags().IntVar(&limit, "max", 0, "return at most this many messages (default from config)")
	cmd.Flags().BoolVar(&summary, "summary", false, "add an activity summary")
	return cmd
}

func newSendCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <server_id> <channel_id> <content>",
		Short: "Send a message to a channel",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &tools.SendRequest{ServerID: args[0], ChannelID: args[1], Content: args[2]}
			return call(cmd, f, "send_message", req, func(ctx context.Context, s *tools.Service) (any, error) {
				return s.Send(ctx, req)
			})
		},
	}
}

func newDiscoverCmd(f *flags) *cobra.Command {
	req := &tools.DiscoverRequest{}
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find channels by keywords, preset or name pattern",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd, f, "discover_channels", req, func(ctx context.Context, s *tools.Service) (any, error) {
				return s.Discover(ctx, req)
			})
		},
	}
	cmd.Flags().StringSliceVar(&req.Keywords, "keyword", nil, "channel name keyword (repeatable)")
	cmd.Flags().StringVar(&req.Preset, "preset", "", "announcements or feedback")
	cmd.Flags().StringVar(&req.Pattern, "pattern", "", "case-insensitive regular expression")
	cmd.Flags().StringSliceVar(&req.ServerIDs, "server", nil, "limit to these server ids (repeatable)")
	return cmd
}

func newStatusCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd, f, "session_status", struct{}{}, func(ctx context.Context, s *tools.Service) (any, error) {
				return s.SessionStatus(ctx)
			})
		},
	}
}

func newLogoutCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd, f, "logout", struct{}{}, func(ctx context.Context, s *tools.Service) (any, error) {
				return s.Logout(ctx)
			})
		},
	}
}

func newAuditCmd(f *flags) *cobra.Command {
	var (
		filter observability.Filter
		since  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print journaled tool calls, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			if cfg.AuditDB == "" {
				return errors.New("audit: no audit database configured (--audit-db or DISCORD_AUDIT_DB)")
			}
			db, err := dbopen.Open(cfg.AuditDB)
			if err != nil {
				return err
			}
			defer db.Close()
			j, err := observability.NewJournal(db)
			if err != nil {
				return err
			}
			defer j.Close()

			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			entries, err := j.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd, entries)
		},
	}
	cmd.Flags().StringVar(&filter.Tool, "tool", "", "only this tool")
	cmd.Flags().StringVar(&filter.Status, "status", "", "success or error")
	cmd.Flags().DurationVar(&since, "since", 0, "only calls in this window, e.g. 24h")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum entries")
	return cmd
}
