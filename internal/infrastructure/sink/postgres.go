package sink

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/storesight/storesight/internal/domain/errors"
	"github.com/storesight/storesight/internal/domain/event"
	"github.com/storesight/storesight/internal/infrastructure/config"
)

const eventsSchema = `
CREATE TABLE IF NOT EXISTS detected_events (
	id            UUID PRIMARY KEY,
	run_id        UUID NOT NULL,
	event_id      BIGINT NOT NULL,
	event_type    TEXT NOT NULL,
	severity      TEXT NOT NULL,
	risk_score    DOUBLE PRECISION NOT NULL,
	occurred_at   TIMESTAMPTZ NOT NULL,
	station_id    TEXT,
	customer_id   TEXT,
	sku           TEXT,
	metadata      JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_detected_events_run ON detected_events (run_id, event_id);
CREATE INDEX IF NOT EXISTS idx_detected_events_type ON detected_events (event_type, occurred_at);
`

// EventRepository persists detection results to Postgres. It is optional:
// the pipeline enables it only when a database URL is configured.
type EventRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewEventRepository connects, verifies the connection, and ensures the
// events table exists.
func NewEventRepository(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*EventRepository, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, apperrors.Wrap(err, "parsing database url")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, apperrors.Wrap(err, "creating connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.NewExternalError("postgres", "ping failed").WithCause(err)
	}
	if _, err := pool.Exec(ctx, eventsSchema); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(err, "ensuring events schema")
	}

	return &EventRepository{
		pool:   pool,
		logger: logger.With("component", "event_repository"),
	}, nil
}

// StoreBatch inserts a run's events in one pipelined batch.
func (r *EventRepository) StoreBatch(ctx context.Context, runID uuid.UUID, events []*event.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, ev := range events {
		metadata, err := json.Marshal(ev.Metadata)
		if err != nil {
			return apperrors.Wrap(err, "encoding event metadata")
		}
		batch.Queue(`
			INSERT INTO detected_events
				(id, run_id, event_id, event_type, severity, risk_score,
				 occurred_at, station_id, customer_id, sku, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			uuid.New(), runID, ev.ID, string(ev.Type), string(ev.Severity),
			event.Round1(ev.RiskScore), ev.Timestamp,
			nullable(ev.Station), nullable(ev.Customer), nullable(ev.SKU),
			metadata,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range events {
		if _, err := results.Exec(); err != nil {
			return apperrors.Wrap(err, "inserting event")
		}
	}

	r.logger.InfoContext(ctx, "events persisted",
		"run_id", runID,
		"count", len(events))
	return nil
}

func (r *EventRepository) Close() {
	r.pool.Close()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
