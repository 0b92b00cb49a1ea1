package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-resume-bumper/internal/config"
	"go-resume-bumper/internal/conversation"
	"go-resume-bumper/internal/database"
	"go-resume-bumper/internal/dedup"
	"go-resume-bumper/internal/jobboard"
	"go-resume-bumper/internal/renewal"
	"go-resume-bumper/internal/reporter"
	"go-resume-bumper/internal/server"
	"go-resume-bumper/internal/telegram"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "bumper",
		Short:   "Telegram bot that keeps hh.ru résumés bumped in search results",
		Version: Version,
	}
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "path to the YAML config file")

	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(webhookCmd())
	rootCmd.AddCommand(renewCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(pingCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds what every command shares.
type app struct {
	cfg      *config.Config
	store    database.Store
	reporter *reporter.SentryReporter
}

func setup(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, err := database.Open(cmd.Context(), cfg.DatabaseURL, database.WithRenewalPeriod(cfg.RenewalPeriod))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &app{
		cfg:      cfg,
		store:    store,
		reporter: reporter.NewSentryReporter(cfg.SentryDSN, cfg.SentryEnvironment),
	}, nil
}

func (a *app) close() {
	a.reporter.Close()
	if err := a.store.Close(); err != nil {
		log.Printf("⚠️ Failed to close database: %v", err)
	}
}

func (a *app) board() *jobboard.HHClient {
	opts := []jobboard.HHOption{jobboard.WithBaseURL(a.cfg.HHAPIURL)}
	if a.cfg.HHUserAgent != "" {
		opts = append(opts, jobboard.WithUserAgent(a.cfg.HHUserAgent))
	}
	return jobboard.NewHHClient(opts...)
}

func (a *app) bot() (*telegram.Bot, error) {
	if err := a.cfg.RequireBot(); err != nil {
		return nil, err
	}
	return telegram.NewBot(a.cfg.TelegramToken)
}

func (a *app) dispatcher(bot *telegram.Bot) *conversation.Dispatcher {
	handler := conversation.NewHandler(a.store, a.board(), conversation.WithReporter(a.reporter))
	return conversation.NewDispatcher(handler, bot, a.reporter)
}

// drain waits for queued conversations to finish after intake stopped.
func drain(d *conversation.Dispatcher) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		log.Printf("⚠️ Dispatcher did not drain in time: %v", err)
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run the bot with long polling",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			bot, err := a.bot()
			if err != nil {
				return err
			}
			d := a.dispatcher(bot)
			defer drain(d)

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return bot.Run(ctx, d.Submit)
		},
	}
}

func webhookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "webhook",
		Short: "Register the webhook and serve Telegram updates over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cfg.RequireWebhook(); err != nil {
				return err
			}
			bot, err := a.bot()
			if err != nil {
				return err
			}
			if err := bot.SetWebhook(a.cfg.WebhookEndpoint()); err != nil {
				return err
			}

			d := a.dispatcher(bot)
			defer drain(d)

			srv := server.NewServer(a.store, d, dedup.NewUpdateCache(dedup.DefaultTTL), a.cfg.WebhookSecret)

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return srv.Run(ctx, ":"+a.cfg.Port)
		},
	}
}

func renewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renew",
		Short: "Run one renewal sweep: bump due résumés and warn owners of closing windows",
		Long: `Run one renewal sweep over every active résumé.

Schedule it from cron or a systemd timer, e.g. every hour:
  0 * * * * bumper renew`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			bot, err := a.bot()
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			renewer := renewal.NewRenewer(a.store, a.board(), bot, a.cfg.WarnBefore, renewal.WithReporter(a.reporter))
			stats, err := renewer.RunOnce(ctx)
			if err != nil {
				a.reporter.CaptureException(err)
				return err
			}
			if stats.SkippedOwners > 0 || stats.Failed > 0 {
				a.reporter.CaptureMessage("renewal sweep incomplete: " + stats.String())
			}
			fmt.Println(stats)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the store applies migrations.
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			fmt.Println("Database schema is up to date")
			return nil
		},
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := a.store.Ping(ctx); err != nil {
				return fmt.Errorf("database unreachable: %w", err)
			}
			fmt.Println("✅ Database is reachable")
			return nil
		},
	}
}
