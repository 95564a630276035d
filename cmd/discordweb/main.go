// CLAUDE:SUMMARY Entry point: cobra root with global flags, config layering, JSON slog on stderr, signal context; serve is the default command.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/discordweb/browser"
	"github.com/hazyhaar/discordweb/client"
	"github.com/hazyhaar/discordweb/config"
	"github.com/hazyhaar/discordweb/dbopen"
	"github.com/hazyhaar/discordweb/kit"
	"github.com/hazyhaar/discordweb/observability"
	"github.com/hazyhaar/discordweb/tools"
)

const appName = "discordweb"

// flags are the global overrides, applied after config.Load.
type flags struct {
	configFile    string
	envFile       string
	logLevel      string
	logFile       string
	headless      bool
	sessionFile   string
	sessionPolicy string
	browserRemote string
	auditDB       string
	guildIDs      []string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error(appName+": fatal", "error", err)
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:   appName,
		Short: "Discord web client bridge exposed as MCP tools",
		Long: `discordweb drives the Discord web client through a headless Chrome and
exposes servers, channels, messages and sending as MCP tools over stdio.
Run "discordweb login" once interactively when the account needs an email
verification; the session is then reused from the session file.`,
		Version:       tools.Implementation.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, &f)
		},
	}

	f.register(root)
	root.AddCommand(
		newServeCmd(&f),
		newLoginCmd(&f),
		newGuildsCmd(&f),
		newChannelsCmd(&f),
		newMessagesCmd(&f),
		newSendCmd(&f),
		newDiscoverCmd(&f),
		newStatusCmd(&f),
		newLogoutCmd(&f),
		newAuditCmd(&f),
	)
	return root
}

// register binds the global flags on cmd.
func (f *flags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configFile, "config", "", "YAML config file")
	pf.StringVar(&f.envFile, "env-file", ".env", "dotenv file, ignored when the default is missing")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&f.logFile, "log-file", "", "also append logs to this file")
	pf.BoolVar(&f.headless, "headless", true, "run Chrome without a window")
	pf.StringVar(&f.sessionFile, "session-file", "", "session artifact path")
	pf.StringVar(&f.sessionPolicy, "session-policy", "", "fresh or reuse")
	pf.StringVar(&f.browserRemote, "browser-remote", "", "DevTools WebSocket URL of an external Chrome")
	pf.StringVar(&f.auditDB, "audit-db", "", "SQLite file journaling every tool call")
	pf.StringSliceVar(&f.guildIDs, "guild", nil, "default guild ids for discovery (repeatable)")
}

// load reads the configuration and applies the flags the user set.
func (f *flags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.Sources{File: f.configFile, EnvFile: f.envFile})
	if err != nil {
		return nil, err
	}
	set := cmd.Flags().Changed
	if set("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if set("log-file") {
		cfg.LogFile = f.logFile
	}
	if set("headless") {
		cfg.Headless = f.headless
	}
	if set("session-file") {
		cfg.SessionFile = f.sessionFile
	}
	if set("session-policy") {
		cfg.SessionPolicy = f.sessionPolicy
	}
	if set("browser-remote") {
		cfg.Browser.Remote = f.browserRemote
	}
	if set("audit-db") {
		cfg.AuditDB = f.auditDB
	}
	if set("guild") {
		cfg.GuildIDs = f.guildIDs
	}
	return cfg, nil
}

// resolve is load followed by validation.
func (f *flags) resolve(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := f.load(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is the wired process: one client, its tool service and the optional
// call journal.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *client.Client
	service *tools.Service
	journal *observability.Journal
	auditDB *sql.DB
	logOut  io.Closer
}

func setup(cmd *cobra.Command, f *flags) (*app, error) {
	cfg, err := f.resolve(cmd)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	// stdout carries the MCP stream, logs go to stderr.
	writers := []io.Writer{os.Stderr}
	if cfg.LogFile != "" {
		lf, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		a.logOut = lf
		writers = append(writers, lf)
	}
	a.logger = observability.NewLogger(cfg.Level(), writers...)
	slog.SetDefault(a.logger)

	ctx := cmd.Context()
	if cfg.AuditDB != "" {
		db, err := dbopen.Open(cfg.AuditDB, dbopen.WithMkdirAll())
		if err != nil {
			a.close()
			return nil, fmt.Errorf("audit db: %w", err)
		}
		a.auditDB = db
		a.journal, err = observability.NewJournal(db, observability.WithLogger(a.logger))
		if err != nil {
			a.close()
			return nil, err
		}
		if cfg.AuditRetentionDays > 0 {
			if n, err := a.journal.Cleanup(ctx, cfg.AuditRetentionDays); err != nil {
				a.logger.Warn("audit cleanup failed", "error", err)
			} else if n > 0 {
				a.logger.Info("audit cleanup", "deleted", n)
			}
		}
	}

	driver := browser.NewRodDriver(cfg.RodConfig(a.logger))
	a.client = client.New(driver, cfg.ClientConfig(), a.logger)
	if err := a.client.Start(ctx); err != nil {
		a.close()
		return nil, err
	}
	a.service = tools.NewService(a.client, cfg.Limits())
	return a, nil
}

func (a *app) middlewares() []kit.Middleware {
	if a.journal == nil {
		return nil
	}
	return []kit.Middleware{a.journal.Middleware()}
}

// close stops the browser within the close timeout, even after the signal
// context is done, then flushes the journal.
func (a *app) close() {
	if a.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeouts.Close+time.Second)
		if err := a.client.Stop(ctx); err != nil {
			a.logger.Warn("client stop", "error", err)
		}
		cancel()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("journal close", "error", err)
		}
	}
	if a.auditDB != nil {
		a.auditDB.Close()
	}
	if a.logOut != nil {
		a.logOut.Close()
	}
}
