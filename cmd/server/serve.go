package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/gosocket/internal/logger"
	"github.com/Tyrowin/gosocket/internal/server"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	addr       string
	configPath string
	logLevel   string
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Long: `Start the relay server. Configuration comes from --config when given,
otherwise from environment variables; flags override both.

CHAT messages are rebroadcast to the other clients with the sender's id,
and JOIN and LEAVE announce clients arriving and leaving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML or JSON configuration file, reloaded on change")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	return cmd
}

func (o serveOptions) load() (*server.Config, error) {
	var cfg *server.Config
	if o.configPath != "" {
		var err error
		if cfg, err = server.LoadConfigFile(o.configPath); err != nil {
			return nil, err
		}
	} else {
		cfg = server.NewConfigFromEnv()
	}
	o.override(cfg)
	return cfg, nil
}

func (o serveOptions) override(cfg *server.Config) {
	if o.addr != "" {
		cfg.Addr = o.addr
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
}

func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	lg, err := logger.New(logger.Options{Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = lg.Sync() }()
	defer zap.ReplaceGlobals(lg)()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.Listen(cfg.Addr, server.WithConfig(cfg), server.WithLogger(lg))
	if err != nil {
		return err
	}

	r := newRelay(srv, lg)
	defer r.stop()

	printStartup(srv)

	g, gctx := errgroup.WithContext(ctx)
	if opts.configPath != "" {
		g.Go(func() error {
			return server.WatchConfigFile(gctx, opts.configPath, func(cfg *server.Config) {
				opts.override(cfg)
				srv.SetConfig(cfg)
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Close(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	lg.Info("Server stopped")
	return nil
}

func printStartup(srv *server.Server) {
	addr := srv.Addr().String()
	fmt.Println(color.CyanString("gosocket %s", version))
	fmt.Printf("  %s ws://%s/\n", color.GreenString("WebSocket"), addr)
	fmt.Printf("  %s    http://%s/healthz\n", color.GreenString("Health"), addr)
	fmt.Printf("  %s   http://%s/metrics\n", color.GreenString("Metrics"), addr)
}
