// Package main provides the Dublette deduplication pipeline binary.
//
// One invocation runs one batch: the given publication files are ingested,
// the full stored corpus is re-matched, and the canonical event set is
// regenerated in place. Auxiliary commands manage the persisted run
// configuration and the encrypted LLM credential.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/dublette-io/dublette/internal/config"
	"github.com/dublette-io/dublette/internal/matching"
	"github.com/dublette-io/dublette/internal/normalize"
	"github.com/dublette-io/dublette/internal/pipeline"
	"github.com/dublette-io/dublette/internal/resolver"
	"github.com/dublette-io/dublette/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "dublette"
)

// Environment variables read only by this binary.
const (
	// secretKeyEnvVar holds the hex-encoded 32-byte key that seals the
	// stored LLM credential.
	secretKeyEnvVar = "DUBLETTE_SECRET_KEY"

	// credentialEnvVar supplies the LLM API key to set-credential. An
	// environment variable instead of an argument keeps the key out of
	// shell history and process listings.
	credentialEnvVar = "DUBLETTE_ANTHROPIC_API_KEY"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))

	logger.Info("Starting Dublette",
		slog.String("service", name),
		slog.String("version", version),
	)

	storageConfig := storage.LoadConfig()

	conn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database",
			slog.String("database_url", storageConfig.MaskDatabaseURL()),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	defer func() { _ = conn.Close() }()

	logger.Info("Connected to database",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
	)

	ctx := context.Background()

	if err := execute(ctx, args, conn, logger); err != nil {
		logger.Error("Command failed", slog.String("error", err.Error()))

		_ = conn.Close()
		//nolint:gocritic // explicit cleanup before os.Exit, defer will not run
		os.Exit(1)
	}
}

func execute(ctx context.Context, args []string, conn *storage.Connection, logger *slog.Logger) error {
	switch args[0] {
	case "run":
		return runBatch(ctx, args[1:], conn, logger)
	case "save-config":
		if len(args) != 2 {
			return errors.New("usage: dublette save-config <config.yaml>")
		}

		return saveConfig(ctx, args[1], conn)
	case "set-credential":
		return setCredential(ctx, conn)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// runBatch wires the pipeline and processes one batch over the given
// publication files.
func runBatch(ctx context.Context, paths []string, conn *storage.Connection, logger *slog.Logger) error {
	events, err := storage.NewSourceEventStore(conn)
	if err != nil {
		return err
	}

	canonical, err := storage.NewCanonicalStore(conn)
	if err != nil {
		return err
	}

	configs, err := newConfigStore(conn)
	if err != nil {
		return err
	}

	rules, err := normalize.LoadRulesFromEnv()
	if err != nil {
		return fmt.Errorf("load normalizer rules: %w", err)
	}

	arbitrator, err := buildArbitrator(ctx, conn, configs, logger)
	if err != nil {
		return err
	}

	driver := pipeline.New(pipeline.Deps{
		Events:     events,
		Canonical:  canonical,
		Configs:    configs,
		Arbitrator: arbitrator,
		Normalizer: normalize.New(rules),
		Logger:     logger,
	})

	files := make([]pipeline.BatchFile, 0, len(paths))

	for _, path := range paths {
		f, err := os.Open(path) //nolint:gosec // paths come from the operator's command line
		if err != nil {
			return fmt.Errorf("open publication file: %w", err)
		}

		defer func() { _ = f.Close() }()

		files = append(files, pipeline.BatchFile{ID: f.Name(), Reader: f})
	}

	result, err := driver.ProcessBatch(ctx, files)
	if err != nil {
		return err
	}

	for _, letter := range result.DeadLetters {
		logger.Warn("Dead-lettered publication file",
			slog.String("file_id", letter.FileID),
			slog.String("reason", letter.Reason),
		)
	}

	return nil
}

// buildArbitrator constructs the AI resolver when arbitration is enabled and
// a credential is stored. A missing credential downgrades to deterministic
// matching with a warning rather than failing the batch.
func buildArbitrator(ctx context.Context, conn *storage.Connection, configs *storage.ConfigStore, logger *slog.Logger) (pipeline.Arbitrator, error) {
	cfg, ok, err := configs.Load(ctx)
	if err != nil {
		return nil, err
	}

	if !ok {
		cfg, err = matching.LoadConfigFileFromEnv()
		if err != nil {
			return nil, err
		}
	}

	if !cfg.AI.Enabled {
		return nil, nil //nolint:nilnil // nil arbitrator disables the stage
	}

	apiKey, err := configs.LoadCredential(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialMissing) {
			logger.Warn("AI arbitration enabled but no credential stored, running deterministic only",
				slog.String("note", "run dublette set-credential to store one"),
			)

			return nil, nil //nolint:nilnil // nil arbitrator disables the stage
		}

		return nil, err
	}

	client, err := resolver.NewAnthropicClient(apiKey, cfg.AI)
	if err != nil {
		return nil, err
	}

	cache, err := storage.NewAICacheStore(conn)
	if err != nil {
		return nil, err
	}

	ledger, err := storage.NewAIUsageStore(conn)
	if err != nil {
		return nil, err
	}

	logger.Info("AI arbitration enabled",
		slog.String("model", cfg.AI.Model),
		slog.Int("max_concurrent_requests", cfg.AI.MaxConcurrentRequests),
		slog.Bool("cache_enabled", cfg.AI.CacheEnabled),
	)

	return resolver.New(client, cache, ledger, cfg.AI, logger), nil
}

// saveConfig validates a configuration file and persists it as the active
// run configuration.
func saveConfig(ctx context.Context, path string, conn *storage.Connection) error {
	cfg, err := matching.LoadConfigFile(path)
	if err != nil {
		return err
	}

	configs, err := newConfigStore(conn)
	if err != nil {
		return err
	}

	if err := configs.Save(ctx, cfg); err != nil {
		return err
	}

	log.Printf("Configuration saved from %s", path)

	return nil
}

// setCredential seals the LLM API key from the environment into the
// configuration row.
func setCredential(ctx context.Context, conn *storage.Connection) error {
	apiKey := os.Getenv(credentialEnvVar)
	if apiKey == "" {
		return fmt.Errorf("%s is not set", credentialEnvVar)
	}

	configs, err := newConfigStore(conn)
	if err != nil {
		return err
	}

	if err := configs.SaveCredential(ctx, apiKey); err != nil {
		return err
	}

	log.Println("Credential stored")

	return nil
}

// newConfigStore builds the configuration store. The secret key is optional:
// without it the store still serves configurations, and any credential
// operation fails with ErrSecretKeyInvalid.
func newConfigStore(conn *storage.Connection) (*storage.ConfigStore, error) {
	var secretKey []byte

	if hexKey := os.Getenv(secretKeyEnvVar); hexKey != "" {
		var err error

		secretKey, err = storage.ParseSecretKey(hexKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", secretKeyEnvVar, err)
		}
	}

	return storage.NewConfigStore(conn, secretKey)
}

// printUsage displays usage information.
func printUsage() {
	fmt.Printf(`%s v%s - Event Deduplication Pipeline

USAGE:
    %s [OPTIONS] COMMAND [ARGS]

COMMANDS:
    run [FILE...]       Ingest the given publication files and run one
                        deduplication batch over the full stored corpus
    save-config FILE    Validate and persist a matching configuration file
    set-credential      Store the LLM API key from %s

OPTIONS:
    --version  Show version information

ENVIRONMENT VARIABLES:
    DATABASE_URL            PostgreSQL connection string (REQUIRED)
    %s     Hex-encoded 32-byte key sealing the stored
                            LLM credential (required for AI arbitration
                            and set-credential)
    DUBLETTE_RULES_PATH     Normalizer rules file (default: .dublette.yaml)
    DUBLETTE_CONFIG_PATH    Fallback matching configuration file
                            (default: .dublette.matching.yaml)
    LOG_LEVEL               debug, info, warn, error (default: info)
`, name, version, name, credentialEnvVar, secretKeyEnvVar)
}
