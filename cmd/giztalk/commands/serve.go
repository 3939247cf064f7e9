package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spf13/cobra"

	"github.com/haivivi/giztalk/cmd/giztalk/internal/config"
	"github.com/haivivi/giztalk/pkg/account"
	"github.com/haivivi/giztalk/pkg/chat"
	"github.com/haivivi/giztalk/pkg/conversation"
	"github.com/haivivi/giztalk/pkg/credits"
	openairealtime "github.com/haivivi/giztalk/pkg/openai-realtime"
	"github.com/haivivi/giztalk/pkg/payments"
	"github.com/haivivi/giztalk/pkg/payments/toss"
	"github.com/haivivi/giztalk/pkg/server"
	"github.com/haivivi/giztalk/pkg/store/badgerstore"
	"github.com/haivivi/giztalk/pkg/store/postgres"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API used by the web app and by "giztalk call".

Data is kept in Postgres when database.url (or DATABASE_URL) is set, and in
a local Badger directory otherwise. Pending Postgres migrations are applied
at startup.

Realtime and chat routes need openai.api_key; payment routes need
toss.secret_key. Routes whose service is not configured answer 503.

Examples:
  giztalk serve
  giztalk serve --addr :8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from server.addr)")
	rootCmd.AddCommand(serveCmd)
}

// backend is everything the services persist through. Both store
// implementations satisfy it.
type backend interface {
	account.Store
	credits.Store
	conversation.Store
	payments.Store
	Close() error
}

var (
	_ backend = (*postgres.Store)(nil)
	_ backend = (*badgerstore.Store)(nil)
)

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend, error) {
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database.URL, logger)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("using postgres store")
		return db, nil
	}
	db, err := badgerstore.Open(badgerstore.Options{Dir: cfg.Database.BadgerDir, Logger: logger})
	if err != nil {
		return nil, err
	}
	logger.Info("using badger store", "dir", cfg.Database.BadgerDir)
	return db, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := slog.Default()

	db, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ledger := credits.NewLedger(db, logger)
	scfg := server.Config{
		Accounts:      db,
		Ledger:        ledger,
		Conversations: conversation.NewService(db, logger),
		AdminToken:    cfg.Server.AdminToken,
		Logger:        logger,
	}

	if cfg.OpenAI.APIKey != "" {
		var rtOpts []openairealtime.Option
		if cfg.OpenAI.RealtimeURL != "" {
			rtOpts = append(rtOpts, openairealtime.WithHTTPURL(cfg.OpenAI.RealtimeURL))
		}
		scfg.Realtime = openairealtime.NewClient(cfg.OpenAI.APIKey, rtOpts...)

		chatOpts := []option.RequestOption{option.WithAPIKey(cfg.OpenAI.APIKey)}
		if cfg.OpenAI.BaseURL != "" {
			chatOpts = append(chatOpts, option.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		scfg.Chat = chat.NewService(openai.NewClient(chatOpts...), ledger, logger)
	} else {
		logger.Warn("openai.api_key not set; realtime and chat routes are disabled")
	}

	if cfg.Toss.SecretKey != "" {
		var tossOpts []toss.Option
		if cfg.Toss.BaseURL != "" {
			tossOpts = append(tossOpts, toss.WithBaseURL(cfg.Toss.BaseURL))
		}
		scfg.Payments = payments.NewService(db, toss.NewClient(cfg.Toss.SecretKey, tossOpts...), ledger, payments.Config{
			CreditsPer5000Won: cfg.Credits.Per5000Won,
			AppURL:            cfg.Server.AppURL,
		}, logger)
	} else {
		logger.Warn("toss.secret_key not set; payment routes are disabled")
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	return server.New(scfg).ListenAndServe(ctx, addr)
}
