package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/app"
	"github.com/kailas-cloud/ragvoice/internal/config"
	logpkg "github.com/kailas-cloud/ragvoice/internal/logger"
	"github.com/kailas-cloud/ragvoice/internal/version"
)

func main() {
	// .env is optional; production passes real environment variables.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ragvoice",
		Short:        "Document-grounded chat and voice assistant",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newIngestCmd(), newAskCmd(), newVersionCmd())
	return root
}

// env bundles what every command needs.
type env struct {
	name   string
	cfg    config.Config
	logger *zap.Logger
}

func loadEnv() (*env, error) {
	name := config.GetEnv()
	cfg, err := config.Load(name)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logpkg.NewLogger(name, cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return &env{name: name, cfg: cfg, logger: logger}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Index documents; without arguments rescans the raw documents directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer func() { _ = e.logger.Sync() }()

			ctx, cancel := signalContext()
			defer cancel()

			a, err := app.Build(ctx, e.cfg, e.logger, app.Overrides{})
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				rep, err := a.Ingest.Rescan(ctx)
				if err != nil {
					return fmt.Errorf("rescan: %w", err)
				}
				fmt.Fprintf(out, "indexed %d, unchanged %d, failed %d\n", rep.Indexed, rep.Unchanged, rep.Failed)
				return nil
			}

			var failed int
			for _, path := range args {
				res, err := a.Ingest.IngestFile(ctx, path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "%s: %s (%d chunks, %d skipped)\n",
					path, res.Outcome, res.Document.ChunkCount, res.Skipped)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
}

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer func() { _ = e.logger.Sync() }()

			ctx, cancel := signalContext()
			defer cancel()

			a, err := app.Build(ctx, e.cfg, e.logger, app.Overrides{})
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			defer a.Close()

			stream, err := a.Chat.Answer(ctx, strings.Join(args, " "), nil)
			if err != nil {
				return fmt.Errorf("answer: %w", err)
			}
			defer stream.Close()

			out := cmd.OutOrStdout()
			for {
				frag, err := stream.Recv()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return fmt.Errorf("answer: %w", err)
				}
				fmt.Fprint(out, frag)
			}
			fmt.Fprintln(out)
			for i, sc := range stream.Sources() {
				fmt.Fprintf(out, "[%d] %s (score %.3f)\n", i+1, sc.Chunk.Source, sc.Score)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
