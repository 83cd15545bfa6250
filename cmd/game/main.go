package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pefman/seabattle/internal/api"
	"github.com/pefman/seabattle/internal/config"
	"github.com/pefman/seabattle/internal/matchlog"
	"github.com/pefman/seabattle/internal/server"
	"github.com/pefman/seabattle/internal/stats"
)

// Build metadata injected via -ldflags at build time
var (
	buildVersion = "dev"
	buildTime    = ""
)

func newLogger(cfg config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if strings.EqualFold(cfg.LogFormat, "console") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config")
	}
	log := newLogger(cfg)

	ml, err := matchlog.New(cfg.MatchLogDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("match log")
	}
	deps := server.Deps{Stats: stats.NewStore(nil), MatchLog: ml}
	if cfg.DataAPIBase != "" {
		deps.Profiles = api.NewClient(cfg.DataAPIBase)
	}
	hub := server.NewHub(cfg, deps, log)

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           hub.Router(server.BuildInfo{Version: buildVersion, Time: buildTime}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", buildVersion).
			Str("dataAPIBase", cfg.DataAPIBase).
			Str("matchLogDir", ml.Dir()).
			Msg("seabattle game server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		hub.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}
