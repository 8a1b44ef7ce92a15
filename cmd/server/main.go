package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dimiro1/banner"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/obiente/translate/goanalyze/internal/config"
	serverhttp "github.com/obiente/translate/goanalyze/internal/http"
	"github.com/obiente/translate/goanalyze/internal/stream"
	"github.com/obiente/translate/goanalyze/internal/telemetry"
)

var version = "dev"

func main() {
	var configFile string

	root := &cobra.Command{
		Use:           "goanalyze",
		Short:         "Streaming emotion and sound-event analysis of audio uploads",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configFile)
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configFile)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a local file and write ndjson to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return analyze(cmd.Context(), configFile, args[0])
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("goanalyze failed")
		stop()
		os.Exit(1)
	}
}

func setupLogging(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	log.Logger = log.Level(lvl)
	zerolog.DefaultContextLogger = &log.Logger
}

func printBanner() {
	tpl := "{{ .Title \"goanalyze\" \"\" 0 }}\nVersion: " + version + "\nGo: {{ .GoVersion }}\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

func serve(ctx context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)
	printBanner()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Interval:    cfg.Telemetry.Interval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("telemetry init failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	a, err := build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: serverhttp.NewRouter(serverhttp.Options{
			Manager:        a.manager,
			Metrics:        a.metrics,
			Device:         a.models.Device.Name(),
			CORSOrigins:    cfg.Server.CORSOrigins,
			MaxUploadBytes: cfg.Server.MaxUploadBytes(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		// responses stream for as long as the analysis runs
		WriteTimeout: 0,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("device", a.models.Device.Name()).
			Str("backend", cfg.Inference.Backend).
			Str("temp_dir", a.manager.Spool().Dir()).
			Msg("goanalyze server starting")
		log.Info().Msgf("endpoints: POST http://%s/analyze, GET ws://%s/ws/analyze", displayAddr(cfg.Server.Addr), displayAddr(cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func analyze(ctx context.Context, configFile, path string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return a.manager.Serve(ctx, f, filepath.Base(path), stream.NewNDJSON(os.Stdout))
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
