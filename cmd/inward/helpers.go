package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/inward-bound/internal/config"
	"github.com/Veraticus/inward-bound/internal/extract"
	"github.com/Veraticus/inward-bound/internal/mailbox"
	"github.com/Veraticus/inward-bound/internal/objstore"
	"github.com/Veraticus/inward-bound/internal/password"
	"github.com/Veraticus/inward-bound/internal/pdf"
	"github.com/Veraticus/inward-bound/internal/pipeline"
	"github.com/Veraticus/inward-bound/internal/rules"
	"github.com/Veraticus/inward-bound/internal/service"
	"github.com/Veraticus/inward-bound/internal/storage"
)

// initStorage initializes the storage service with proper path expansion.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/inward/inward.db"
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if limit := viper.GetInt("pipeline.max_attempts"); limit > 0 {
		store.SetDeadLetterLimit(limit)
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initRuleEngine loads the configured ruleset, falling back to the
// built-in defaults when no rules file is configured.
func initRuleEngine() (*rules.Engine, string, error) {
	rulesPath := config.ExpandPath(viper.GetString("rules.path"))

	engine, err := rules.NewEngine(rules.DefaultRules())
	if err != nil {
		return nil, "", fmt.Errorf("built-in rules are invalid: %w", err)
	}

	if rulesPath != "" {
		if err := engine.LoadFile(rulesPath); err != nil {
			return nil, "", fmt.Errorf("loading rules from %s: %w", rulesPath, err)
		}
	}

	return engine, rulesPath, nil
}

// initResolver assembles the password cascade in source order: rule hint,
// environment, mapping file, body hint.
func initResolver(codec *pdf.Codec) (*password.Resolver, error) {
	producers := []password.Producer{
		password.RuleHintProducer{},
		password.NewEnvProducer(),
	}

	if mappingPath := config.ExpandPath(viper.GetString("passwords.file")); mappingPath != "" {
		mapping, err := password.NewMappingProducer(mappingPath)
		if err != nil {
			return nil, fmt.Errorf("loading password mappings: %w", err)
		}
		producers = append(producers, mapping)
	}

	producers = append(producers, password.BodyHintProducer{})

	resolver := password.NewResolver(codec, producers...)
	if timeout := viper.GetDuration("pdf.attempt_timeout"); timeout > 0 {
		resolver.SetAttemptTimeout(timeout)
	}

	return resolver, nil
}

// initExtractor creates the extraction adapter for the configured provider.
func initExtractor(ctx context.Context) (*extract.Adapter, error) {
	cfg := extract.Config{
		Provider:   viper.GetString("extraction.provider"),
		APIKey:     viper.GetString("extraction.api_key"),
		Model:      viper.GetString("extraction.model"),
		MaxRetries: viper.GetInt("extraction.max_attempts"),
		RetryDelay: viper.GetDuration("extraction.retry_delay"),
		RateLimit:  viper.GetInt("extraction.rpm"),
	}
	if cfg.Provider == "" {
		cfg.Provider = "gemini"
	}

	return extract.NewAdapter(ctx, cfg, slog.Default())
}

// initArchive creates the configured archive backend, or none when
// archiving is disabled.
func initArchive(ctx context.Context) (service.ObjectStore, error) {
	switch backend := viper.GetString("archive.backend"); backend {
	case "", "none":
		return nil, nil
	case "gcs":
		return objstore.NewGCSStore(ctx, viper.GetString("archive.bucket"))
	case "local":
		return objstore.NewLocalStore(config.ExpandPath(viper.GetString("archive.dir")))
	default:
		return nil, fmt.Errorf("unknown archive backend: %s", backend)
	}
}

// initMailbox creates the IMAP source from configuration.
func initMailbox() (service.Mailbox, error) {
	return mailbox.NewIMAPSource(mailbox.IMAPOptions{
		Host:               viper.GetString("mailbox.server"),
		Port:               viper.GetInt("mailbox.port"),
		Username:           viper.GetString("mailbox.username"),
		Password:           viper.GetString("mailbox.password"),
		Folder:             viper.GetString("mailbox.folder"),
		UseTLS:             !viper.GetBool("mailbox.insecure"),
		InsecureSkipVerify: viper.GetBool("mailbox.insecure_skip_verify"),
	})
}

// buildPipeline wires every collaborator into a ready pipeline. The
// returned cleanup releases the extraction adapter; callers own the store.
func buildPipeline(ctx context.Context, store *storage.SQLiteStorage, box service.Mailbox) (*pipeline.Pipeline, func(), error) {
	engine, rulesPath, err := initRuleEngine()
	if err != nil {
		return nil, nil, err
	}

	codec := pdf.NewCodec()

	resolver, err := initResolver(codec)
	if err != nil {
		return nil, nil, err
	}

	extractor, err := initExtractor(ctx)
	if err != nil {
		return nil, nil, err
	}

	archive, err := initArchive(ctx)
	if err != nil {
		extractor.Close()
		return nil, nil, err
	}

	cfg := pipeline.DefaultConfig()
	cfg.RulesPath = rulesPath
	if folder := viper.GetString("mailbox.folder"); folder != "" {
		cfg.Mailbox = folder
	}
	if prefix := viper.GetString("archive.prefix"); prefix != "" {
		cfg.ArchivePrefix = prefix
	}
	if workers := viper.GetInt("pipeline.workers"); workers > 0 {
		cfg.Workers = workers
	}

	p := pipeline.NewWithConfig(pipeline.Deps{
		Rules:     engine,
		Resolver:  resolver,
		Texter:    codec,
		Extractor: extractor,
		Storage:   store,
		Archive:   archive,
		Mailbox:   box,
	}, cfg)

	return p, extractor.Close, nil
}

// runCycle executes one full pipeline pass and reports its stats.
func runCycle(ctx context.Context, store *storage.SQLiteStorage, box service.Mailbox) (*pipeline.CycleStats, error) {
	p, cleanup, err := buildPipeline(ctx, store, box)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	start := time.Now()
	stats, err := p.Run(ctx)
	if err != nil {
		return stats, err
	}

	slog.Info("Cycle finished", "duration", time.Since(start).Round(time.Millisecond))
	return stats, nil
}
