package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyposync/hyposync/internal/annotation"
	"github.com/hyposync/hyposync/internal/config"
	"github.com/hyposync/hyposync/internal/index"
	"github.com/hyposync/hyposync/internal/memoizer"
	"github.com/hyposync/hyposync/internal/paginator"
	"github.com/hyposync/hyposync/internal/pipeline"
	"github.com/hyposync/hyposync/internal/restclient"
	"github.com/hyposync/hyposync/internal/statusapi"
	"github.com/hyposync/hyposync/internal/subscriber"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "hyposync").Logger()

	if os.Getenv("ENV") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	restC := restclient.NewClient(cfg.APIToken, restclient.WithDomain(cfg.Domain))

	search := func(ctx context.Context, p paginator.Params) ([]memoizer.Row, error) {
		result, err := restC.Search(ctx, restclient.SearchParams{
			Group:       p.Group,
			User:        p.User,
			Sort:        p.Sort,
			Order:       p.Order,
			Limit:       p.Limit,
			SearchAfter: p.SearchAfter,
		})
		if err != nil {
			return nil, err
		}
		rows := make([]memoizer.Row, len(result.Rows))
		for i, r := range result.Rows {
			rows[i] = map[string]any(r)
		}
		return rows, nil
	}

	mz := memoizer.New(cfg.Group, cfg.Username, cfg.CachePath(), search)

	idx := index.New()
	p := pipeline.New()
	p.MustRegister("sync", nil, pipeline.NewSyncHandler(idx, mz).Handle)

	filter := subscriber.NewPrefilterBuilder(subscriber.MatchIncludeAny).
		WithActions(true, true, true).
		WithGroups(cfg.Group).
		Build()

	sub := subscriber.New(cfg.APIToken, p, filter, subscriber.WithDomain(cfg.Domain))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("group", cfg.Group).Str("domain", cfg.Domain).Msg("loading cache and backfilling")
	backfill, err := mz.GetAnnos(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("initial backfill failed")
	}
	for _, row := range backfill {
		rec, err := annotation.Decode(row)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed row from backfill")
			continue
		}
		idx.Put(rec)
	}
	log.Info().Int("records", idx.Len()).Msg("index seeded from backfill")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Msg("starting subscriber")
		return sub.Run(gCtx)
	})

	var statusServer *http.Server
	if cfg.StatusAddr != "" {
		statusSrv := &statusapi.Server{
			Subscriber: sub,
			Cache:      mz,
			Index:      idx,
			StartedAt:  time.Now(),
		}
		statusServer = &http.Server{
			Addr:         cfg.StatusAddr,
			Handler:      statusSrv.Routes(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.StatusAddr).Msg("starting status server")
			if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	<-gCtx.Done()
	log.Info().Msg("shutting down gracefully...")

	if statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("status server shutdown error")
		}
		cancel()
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("engine stopped with error")
	}

	log.Info().Msg("hyposync stopped")
}
