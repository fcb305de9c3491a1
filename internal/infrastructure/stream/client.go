// Package stream consumes the replay server's line protocol: one JSON
// banner line describing the feed, then one dataset-tagged record per
// line until the connection closes or the record limit is reached.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	apperrors "github.com/storesight/storesight/internal/domain/errors"
	"github.com/storesight/storesight/internal/domain/record"
	"github.com/storesight/storesight/internal/infrastructure/config"
	"github.com/storesight/storesight/internal/infrastructure/ingest"
	"github.com/storesight/storesight/internal/metrics"
)

// Banner is the first line the replay server sends.
type Banner struct {
	Service     string   `json:"service"`
	Datasets    []string `json:"datasets"`
	TotalEvents int      `json:"total_events"`
	Looping     bool     `json:"looping"`
	SpeedFactor float64  `json:"speed_factor"`
}

type envelope struct {
	Dataset   string          `json:"dataset"`
	Sequence  int64           `json:"sequence"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Handler receives each decoded record in arrival order.
type Handler func(ctx context.Context, r *record.Record) error

// Client reads the live feed and hands normalized records to a handler.
type Client struct {
	cfg     config.StreamConfig
	logger  *slog.Logger
	metrics *metrics.Registry
}

func NewClient(cfg config.StreamConfig, logger *slog.Logger, m *metrics.Registry) *Client {
	return &Client{
		cfg:     cfg,
		logger:  logger.With("component", "stream_client"),
		metrics: m,
	}
}

// Run connects, reads the banner, then forwards records until the feed
// ends, the context is cancelled, or the configured limit is hit.
func (c *Client) Run(ctx context.Context, handle Handler) error {
	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return apperrors.NewExternalError("stream", "connecting to "+addr).WithCause(err)
	}
	defer conn.Close()

	// Unblock the blocking reads when the context ends.
	go func() {
		<-ctx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return apperrors.NewExternalError("stream", "connection closed before banner").WithCause(scanner.Err())
	}
	var banner Banner
	if err := json.Unmarshal(scanner.Bytes(), &banner); err != nil {
		return apperrors.NewExternalError("stream", "unparseable banner").WithCause(err)
	}
	c.logger.InfoContext(ctx, "stream connected",
		"service", banner.Service,
		"datasets", strings.Join(banner.Datasets, ","),
		"total_events", banner.TotalEvents,
		"looping", banner.Looping,
		"speed_factor", banner.SpeedFactor)

	count := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		r, err := c.decode(line)
		if err != nil {
			c.metrics.AddMalformed(ctx, "stream", 1)
			c.logger.WarnContext(ctx, "skipping malformed stream line", "error", err)
			continue
		}
		c.metrics.AddIngested(ctx, r.Kind.String(), 1)

		if err := handle(ctx, r); err != nil {
			return err
		}

		count++
		if c.cfg.Limit > 0 && count >= c.cfg.Limit {
			c.logger.InfoContext(ctx, "record limit reached", "limit", c.cfg.Limit)
			break
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return apperrors.NewExternalError("stream", "reading feed").WithCause(err)
	}

	c.logger.InfoContext(ctx, "stream disconnected", "records", count)
	return nil
}

func (c *Client) decode(line []byte) (*record.Record, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, apperrors.NewDataQualityError("MALFORMED_JSON", "unparseable stream line").WithCause(err)
	}
	kind, ok := datasetKind(env.Dataset)
	if !ok {
		return nil, apperrors.NewDataQualityError("UNKNOWN_DATASET", "unknown dataset "+env.Dataset)
	}

	payload, err := patchTimestamp(env.Payload, env.Timestamp)
	if err != nil {
		return nil, err
	}
	return ingest.ParseLine(kind, payload)
}

// datasetKind maps the server's dataset labels, which carry path-like
// prefixes, onto record kinds by substring.
func datasetKind(dataset string) (record.Kind, bool) {
	switch {
	case strings.Contains(dataset, "POS_Transactions"):
		return record.KindPosTransaction, true
	case strings.Contains(dataset, "RFID_data"):
		return record.KindRfidReading, true
	case strings.Contains(dataset, "Product_recognism"):
		return record.KindProductRecognition, true
	case strings.Contains(dataset, "Queue_monitor"):
		return record.KindQueueSample, true
	case strings.Contains(dataset, "Current_inventory_data"):
		return record.KindInventorySnapshot, true
	}
	return 0, false
}

// patchTimestamp copies the envelope timestamp into payloads that lack
// their own, so the ingest parser sees one canonical shape.
func patchTimestamp(payload json.RawMessage, ts string) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, apperrors.NewDataQualityError("MALFORMED_DATA", "unparseable stream payload").WithCause(err)
	}
	if _, ok := m["timestamp"]; !ok && ts != "" {
		raw, _ := json.Marshal(ts)
		m["timestamp"] = raw
	}
	return json.Marshal(m)
}
