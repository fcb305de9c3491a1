// Package ingest normalizes the raw input surfaces into domain records:
// JSONL sensor streams, the CSV product catalog and the CSV customer
// reference file. Malformed lines are counted and skipped, never fatal.
package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/storesight/storesight/internal/domain/errors"
	"github.com/storesight/storesight/internal/domain/record"
	"github.com/storesight/storesight/internal/infrastructure/config"
	"github.com/storesight/storesight/internal/metrics"
)

// Loader reads a complete data directory into a batch.
type Loader struct {
	cfg     config.DataConfig
	logger  *slog.Logger
	metrics *metrics.Registry
}

func NewLoader(cfg config.DataConfig, logger *slog.Logger, m *metrics.Registry) *Loader {
	return &Loader{
		cfg:     cfg,
		logger:  logger.With("component", "loader"),
		metrics: m,
	}
}

// LoadAll reads the catalogs and every sensor stream. The returned batch
// is finalized and ready for detection.
func (l *Loader) LoadAll(ctx context.Context) (*record.Batch, error) {
	products, err := LoadProducts(filepath.Join(l.cfg.Dir, l.cfg.ProductsFile))
	if err != nil {
		return nil, apperrors.Wrap(err, "loading product catalog")
	}
	customers, err := LoadCustomers(filepath.Join(l.cfg.Dir, l.cfg.CustomersFile))
	if err != nil {
		return nil, apperrors.Wrap(err, "loading customer data")
	}

	batch := &record.Batch{Products: products, Customers: customers}

	streams := []struct {
		kind record.Kind
		file string
	}{
		{record.KindPosTransaction, l.cfg.PosFile},
		{record.KindRfidReading, l.cfg.RfidFile},
		{record.KindProductRecognition, l.cfg.RecognitionFile},
		{record.KindQueueSample, l.cfg.QueueFile},
		{record.KindInventorySnapshot, l.cfg.InventoryFile},
	}

	var seq int64
	for _, s := range streams {
		path := filepath.Join(l.cfg.Dir, s.file)
		n, err := l.loadStream(ctx, batch, s.kind, path, &seq)
		if err != nil {
			return nil, apperrors.Wrap(err, "loading "+s.kind.String())
		}
		l.logger.InfoContext(ctx, "stream loaded",
			"source", s.kind.String(),
			"records", n)
	}

	batch.Finalize()
	return batch, nil
}

func (l *Loader) loadStream(ctx context.Context, batch *record.Batch, kind record.Kind, path string, seq *int64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	source := kind.String()
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		r, err := ParseLine(kind, line)
		if err != nil {
			l.metrics.AddMalformed(ctx, source, 1)
			l.logger.WarnContext(ctx, "skipping malformed line",
				"source", source,
				"error", err)
			continue
		}
		*seq++
		r.Seq = *seq
		batch.Add(r)
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, err
	}
	l.metrics.AddIngested(ctx, source, int64(count))
	return count, nil
}

type rawLine struct {
	Timestamp string          `json:"timestamp"`
	Station   string          `json:"station_id"`
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
}

type posData struct {
	Customer    string  `json:"customer_id"`
	SKU         string  `json:"sku"`
	ProductName string  `json:"product_name"`
	Barcode     string  `json:"barcode"`
	Price       float64 `json:"price"`
	WeightG     float64 `json:"weight_g"`
}

type rfidData struct {
	EPC      string `json:"epc"`
	SKU      string `json:"sku"`
	Location string `json:"location"`
}

type recognitionData struct {
	PredictedProduct string  `json:"predicted_product"`
	Accuracy         float64 `json:"accuracy"`
}

type queueData struct {
	CustomerCount    int     `json:"customer_count"`
	AverageDwellTime float64 `json:"average_dwell_time"`
}

// ParseLine decodes one JSONL line of the given stream into a normalized
// record. Errors are data-quality errors: count and move on.
func ParseLine(kind record.Kind, line []byte) (*record.Record, error) {
	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, apperrors.NewDataQualityError("MALFORMED_JSON", "unparseable line").WithCause(err)
	}
	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return nil, apperrors.NewDataQualityError("BAD_TIMESTAMP", "unparseable timestamp "+raw.Timestamp).WithCause(err)
	}

	r := &record.Record{
		Kind:      kind,
		Timestamp: ts,
		Station:   raw.Station,
		Status:    raw.Status,
	}

	switch kind {
	case record.KindPosTransaction:
		var d posData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return nil, apperrors.NewDataQualityError("MALFORMED_DATA", "bad pos payload").WithCause(err)
		}
		if d.SKU == "" {
			return nil, apperrors.NewDataQualityError("MISSING_SKU", "pos transaction without sku")
		}
		r.Pos = &record.PosTransaction{
			Customer:    d.Customer,
			SKU:         d.SKU,
			ProductName: d.ProductName,
			Barcode:     d.Barcode,
			WeightG:     d.WeightG,
		}
	case record.KindRfidReading:
		var d rfidData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return nil, apperrors.NewDataQualityError("MALFORMED_DATA", "bad rfid payload").WithCause(err)
		}
		r.Rfid = &record.RfidReading{
			EPC:  d.EPC,
			SKU:  d.SKU,
			Zone: record.Zone(d.Location),
		}
	case record.KindProductRecognition:
		var d recognitionData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return nil, apperrors.NewDataQualityError("MALFORMED_DATA", "bad recognition payload").WithCause(err)
		}
		r.Recognition = &record.ProductRecognition{
			PredictedSKU: d.PredictedProduct,
			Confidence:   d.Accuracy,
		}
	case record.KindQueueSample:
		var d queueData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return nil, apperrors.NewDataQualityError("MALFORMED_DATA", "bad queue payload").WithCause(err)
		}
		r.Queue = &record.QueueSample{
			CustomerCount:   d.CustomerCount,
			AvgDwellSeconds: d.AverageDwellTime,
		}
	case record.KindInventorySnapshot:
		var counts map[string]int
		if err := json.Unmarshal(raw.Data, &counts); err != nil {
			return nil, apperrors.NewDataQualityError("MALFORMED_DATA", "bad inventory payload").WithCause(err)
		}
		r.Inventory = &record.InventorySnapshot{Counts: counts}
	default:
		return nil, apperrors.NewDataQualityError("UNKNOWN_KIND", "unknown record kind")
	}

	return r, nil
}

// ParseTimestamp accepts RFC3339 and the zone-less variant the sensor
// feeds actually emit.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}

// LoadProducts reads the product catalog CSV. Columns are located by
// header name so column order does not matter.
func LoadProducts(path string) (*record.Catalog, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	var products []record.Product
	for i, row := range rows {
		get := func(col string) string { return cell(row, header, col) }
		weight, err := strconv.ParseFloat(get("weight"), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad weight: %w", i+2, err)
		}
		price, err := decimal.NewFromString(get("price"))
		if err != nil {
			return nil, fmt.Errorf("row %d: bad price: %w", i+2, err)
		}
		products = append(products, record.Product{
			SKU:             get("SKU"),
			Name:            get("product_name"),
			Barcode:         get("barcode"),
			ExpectedWeightG: weight,
			Price:           price,
			EPCRange:        get("EPC_range"),
		})
	}
	return record.NewCatalog(products), nil
}

// LoadCustomers reads the customer reference CSV keyed by Customer_ID.
func LoadCustomers(path string) (map[string]record.Customer, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	customers := make(map[string]record.Customer, len(rows))
	for _, row := range rows {
		get := func(col string) string { return cell(row, header, col) }
		id := get("Customer_ID")
		if id == "" {
			continue
		}
		customers[id] = record.Customer{
			ID:      id,
			Name:    get("Name"),
			Age:     get("Age"),
			Address: get("Address"),
			Phone:   get("TP"),
		}
	}
	return customers, nil
}

func readCSV(path string) ([][]string, map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	head, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	header := make(map[string]int, len(head))
	for i, col := range head {
		header[col] = i
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

func cell(row []string, header map[string]int, col string) string {
	i, ok := header[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
