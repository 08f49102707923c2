// Command ragserver runs the document question-answering service.
//
// Usage:
//
//	ragserver serve --config config.yaml
//	ragserver version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/vedicpedia/ragserver/pkg/blob"
	"github.com/vedicpedia/ragserver/pkg/config"
	"github.com/vedicpedia/ragserver/pkg/embedder"
	"github.com/vedicpedia/ragserver/pkg/extract"
	"github.com/vedicpedia/ragserver/pkg/llms"
	"github.com/vedicpedia/ragserver/pkg/logger"
	"github.com/vedicpedia/ragserver/pkg/metadata"
	"github.com/vedicpedia/ragserver/pkg/pipeline"
	"github.com/vedicpedia/ragserver/pkg/server"
	"github.com/vedicpedia/ragserver/pkg/utils"
	"github.com/vedicpedia/ragserver/pkg/vector"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" default:"withargs" help:"Start the HTTP server."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (text or json)." default:"text"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("ragserver version %s\n", version)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct{}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if cli.LogLevel != "" {
		cfg.Logger.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logger.Format = cli.LogFormat
	}
	if err := logger.Init(cfg.Logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := blob.NewMinioStore(cfg.Blob)
	if err != nil {
		return err
	}

	meta, err := metadata.NewMongoStore(ctx, cfg.Metadata)
	if err != nil {
		return err
	}
	defer func() {
		if err := meta.Close(context.Background()); err != nil {
			slog.Warn("failed to close metadata store", "error", err)
		}
	}()

	vectors, err := vector.NewProvider(cfg.Vector)
	if err != nil {
		return err
	}
	defer func() {
		if err := vectors.Close(); err != nil {
			slog.Warn("failed to close vector provider", "error", err)
		}
	}()

	emb, err := embedder.NewOpenAIEmbedder(cfg.Embedder)
	if err != nil {
		return err
	}

	llm, err := llms.NewProviderFromConfig(cfg.LLM)
	if err != nil {
		return err
	}

	tokens, err := utils.NewTokenCounter(cfg.Embedder.Model)
	if err != nil {
		slog.Warn("token counter unavailable, using estimates", "error", err)
		tokens = nil
	}

	ingestion := pipeline.NewIngestion(blobs, meta, vectors, emb, extract.NewRegistry(), cfg.Ingest, cfg.Blob.Folder)
	if err := ingestion.Bootstrap(ctx); err != nil {
		return err
	}

	query := pipeline.NewQuery(vectors, emb, llm, blobs, tokens, cfg.Query)

	srv := server.New(cfg.Server, ingestion, query, blobs)
	slog.Info("ragserver starting",
		"vector_provider", cfg.Vector.Provider,
		"embedding_model", cfg.Embedder.Model,
		"llm_provider", cfg.LLM.Provider,
	)
	return srv.Run(ctx)
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("ragserver"),
		kong.Description("Retrieval-augmented document question answering service."),
		kong.UsageOnError(),
	)
	if err := kctx.Run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
