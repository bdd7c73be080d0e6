package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/tabledesk/internal/observability/logger"
	"github.com/smallbiznis/tabledesk/internal/realtime/replica"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// BoardConfig is read from BOARD_* environment variables.
type BoardConfig struct {
	BaseURL   string
	Slug      string
	SessionID string
	LogLevel  string
	LogFormat string
}

func loadBoardConfig() (BoardConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("board")
	v.AutomaticEnv()
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("slug", "demo")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	cfg := BoardConfig{
		BaseURL:   strings.TrimSpace(v.GetString("base_url")),
		Slug:      strings.TrimSpace(v.GetString("slug")),
		SessionID: strings.TrimSpace(v.GetString("session_id")),
		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
	}
	if cfg.Slug == "" {
		return BoardConfig{}, fmt.Errorf("BOARD_SLUG is required")
	}
	return cfg, nil
}

func provideLoggerConfig(cfg BoardConfig) logger.Config {
	return logger.Config{
		ServiceName: "tabledesk-board",
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	}
}

func provideSource(cfg BoardConfig) *replica.HTTPSource {
	source := replica.NewHTTPSource(cfg.BaseURL, cfg.Slug)
	source.SessionID = cfg.SessionID
	return source
}

func main() {
	app := fx.New(
		fx.Provide(
			loadBoardConfig,
			provideLoggerConfig,
			logger.New,
			provideSource,
		),
		fx.Invoke(runBoard),
	)
	app.Run()
}

// runBoard resolves the restaurant from a first snapshot, then keeps a replica
// in sync and logs the working set whenever it changes.
func runBoard(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg BoardConfig, source *replica.HTTPSource, log *zap.Logger) {
	log = log.Named("board")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			snapshot, err := source.Snapshot(startCtx)
			if err != nil {
				return fmt.Errorf("initial board snapshot: %w", err)
			}

			rep := replica.New(replica.Scope{
				RestaurantID: snapshot.RestaurantID,
				SessionID:    cfg.SessionID,
				OpenOnly:     true,
			})
			rep.Reset(*snapshot)

			interval := time.Duration(snapshot.PollIntervalMS) * time.Millisecond
			syncer := replica.NewSyncer(rep, source, log, replica.WithPollInterval(interval))
			syncer.SetVisible(true)

			go func() {
				defer close(done)
				go render(ctx, rep, log)
				if err := syncer.Run(ctx); err != nil && ctx.Err() == nil {
					log.Error("board sync stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			log.Info("board started",
				zap.String("slug", cfg.Slug),
				zap.String("restaurant_id", snapshot.RestaurantID),
				zap.Duration("poll_interval", syncer.PollInterval()),
			)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func render(ctx context.Context, rep *replica.Replica, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-rep.Changed():
		}

		for _, o := range rep.Orders() {
			log.Info("order",
				zap.String("id", o.ID.String()),
				zap.String("table", o.TableNumber),
				zap.String("status", string(o.Status)),
				zap.Bool("paid", o.IsPaid),
				zap.Int("lines", len(o.Lines)),
				zap.String("total", o.Total.StringFixed(2)),
			)
		}
		for _, s := range rep.Sessions() {
			agg, ok := rep.Aggregate(s.ID)
			if !ok {
				continue
			}
			log.Info("table",
				zap.String("table", s.TableNumber),
				zap.String("total", agg.Total.StringFixed(2)),
				zap.String("remaining", agg.Remaining.StringFixed(2)),
			)
		}
	}
}
