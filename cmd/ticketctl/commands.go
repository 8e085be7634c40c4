package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/persistence"
	"github.com/spec-kit/ticket-triage/internal/repository"
)

var errNoSuggestion = errors.New("no suggestion")

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "ticketctl",
		Short:        "Support ticket triage tools",
		SilenceUsage: true,
	}

	classifyCmd := &cobra.Command{
		Use:   "classify <description...>",
		Short: "Suggest a category and priority for a ticket description",
		Long: `Ask the configured AI provider for a category and priority suggestion.

Prints the suggestion as JSON. Exits non-zero with "no suggestion" when the
provider is not configured or its reply cannot be used.

Examples:
  ticketctl classify "I was charged twice this month"
  ticketctl classify --provider anthropic "The app crashes on startup"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, _ := cmd.Flags().GetString("provider")
			return runClassify(cmd, *cfg, provider, strings.Join(args, " "))
		},
	}
	classifyCmd.Flags().String("provider", "", "override CLASSIFIER_PROVIDER (openai, gemini, anthropic)")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the configured storage driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, *cfg)
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print ticket statistics straight from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, *cfg)
		},
	}

	root.AddCommand(classifyCmd, migrateCmd, statsCmd)
	return root
}

func cliLogger(cfg config.Config) *zap.Logger {
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func runClassify(cmd *cobra.Command, cfg config.Config, provider, description string) error {
	if provider = strings.ToLower(strings.TrimSpace(provider)); provider != "" {
		cfg.Classifier.Provider = provider
	}
	logger := cliLogger(cfg)
	defer logger.Sync() //nolint:errcheck

	c, err := classifier.New(cmd.Context(), cfg.Classifier, logger)
	if err != nil {
		return err
	}
	defer c.Close() //nolint:errcheck

	result, ok := c.Classify(cmd.Context(), description)
	if !ok {
		return errNoSuggestion
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func openStore(cmd *cobra.Command, cfg config.Config, logger *zap.Logger) (*persistence.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return persistence.OpenStore(cmd.Context(), cfg.Storage, cfg.Postgres, logger)
}

func runMigrate(cmd *cobra.Command, cfg config.Config) error {
	logger := cliLogger(cfg)
	defer logger.Sync() //nolint:errcheck

	store, err := openStore(cmd, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(cmd.Context(), logger); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", store.Driver)
	return nil
}

func runStats(cmd *cobra.Command, cfg config.Config) error {
	logger := cliLogger(cfg)
	defer logger.Sync() //nolint:errcheck

	store, err := openStore(cmd, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var repo repository.TicketRepository
	if store.Postgres != nil {
		repo = repository.NewTicketRepository(store.Postgres.PoolHandle())
	} else {
		repo = repository.NewSQLiteTicketRepository(store.SQLite.DB)
	}
	stats, err := repo.Stats(cmd.Context())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
