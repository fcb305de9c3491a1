package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the immutable configuration value handed to every component at
// construction time. Nothing mutates it after Load returns.
type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Data      DataConfig      `koanf:"data"`
	Output    OutputConfig    `koanf:"output"`
	Detection DetectionConfig `koanf:"detection"`
	Stream    StreamConfig    `koanf:"stream"`
	Database  DatabaseConfig  `koanf:"database"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type DataConfig struct {
	Dir             string `koanf:"dir"`
	ProductsFile    string `koanf:"products_file"`
	CustomersFile   string `koanf:"customers_file"`
	PosFile         string `koanf:"pos_file"`
	RfidFile        string `koanf:"rfid_file"`
	RecognitionFile string `koanf:"recognition_file"`
	QueueFile       string `koanf:"queue_file"`
	InventoryFile   string `koanf:"inventory_file"`
}

type OutputConfig struct {
	EventsFile  string `koanf:"events_file"`
	SummaryFile string `koanf:"summary_file"`
}

// DetectionConfig carries every detector threshold. Validation runs at
// load time; detectors never check thresholds again.
type DetectionConfig struct {
	WeightTolerancePercent        float64       `koanf:"weight_tolerance_percent" validate:"gt=0"`
	ProductRecognitionConfidence  float64       `koanf:"product_recognition_confidence" validate:"gte=0,lte=1"`
	QueueLengthAlert              int           `koanf:"queue_length_alert" validate:"gt=0"`
	WaitTimeAlert                 float64       `koanf:"wait_time_alert" validate:"gt=0"`
	DwellTimeAlert                float64       `koanf:"dwell_time_alert" validate:"gt=0"`
	InventoryDiscrepancyThreshold float64       `koanf:"inventory_discrepancy_threshold" validate:"gt=0"`
	SystemCrashDuration           time.Duration `koanf:"system_crash_duration" validate:"gt=0"`
	RfidPosTimeWindow             time.Duration `koanf:"rfid_pos_time_window" validate:"gte=0"`
	StationAlertWaitThreshold     float64       `koanf:"station_alert_wait_threshold" validate:"gt=0"`
	StationAlertOccurrences       int           `koanf:"station_alert_occurrences" validate:"gt=0"`
	StationAlertWindowMinutes     int           `koanf:"station_alert_window_minutes" validate:"gt=0"`
	HighRiskCustomerEvents        int           `koanf:"high_risk_customer_events" validate:"gt=0"`
	HighRiskCustomerScore         float64       `koanf:"high_risk_customer_score" validate:"gte=0,lte=100"`
}

// StationAlertWindow returns the station performance look-back as a
// duration.
func (d DetectionConfig) StationAlertWindow() time.Duration {
	return time.Duration(d.StationAlertWindowMinutes) * time.Minute
}

type StreamConfig struct {
	Host  string `koanf:"host"`
	Port  int    `koanf:"port" validate:"gt=0,lte=65535"`
	Limit int    `koanf:"limit" validate:"gte=0"`
}

type DatabaseConfig struct {
	// URL enables the Postgres event sink when non-empty.
	URL             string        `koanf:"url"`
	MaxConns        int           `koanf:"max_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type TelemetryConfig struct {
	Enabled       bool          `koanf:"enabled"`
	OTLPEndpoint  string        `koanf:"otlp_endpoint"`
	SamplingRate  float64       `koanf:"sampling_rate" validate:"gte=0,lte=1"`
	ExportTimeout time.Duration `koanf:"export_timeout"`
}

func defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Data: DataConfig{
			Dir:             "data",
			ProductsFile:    "products_list.csv",
			CustomersFile:   "customer_data.csv",
			PosFile:         "pos_transactions.jsonl",
			RfidFile:        "rfid_readings.jsonl",
			RecognitionFile: "product_recognition.jsonl",
			QueueFile:       "queue_monitoring.jsonl",
			InventoryFile:   "inventory_snapshots.jsonl",
		},
		Output: OutputConfig{
			EventsFile:  "output/events.jsonl",
			SummaryFile: "output/summary.json",
		},
		Detection: DetectionConfig{
			WeightTolerancePercent:        15,
			ProductRecognitionConfidence:  0.75,
			QueueLengthAlert:              5,
			WaitTimeAlert:                 300,
			DwellTimeAlert:                180,
			InventoryDiscrepancyThreshold: 10,
			SystemCrashDuration:           30 * time.Second,
			RfidPosTimeWindow:             10 * time.Second,
			StationAlertWaitThreshold:     300,
			StationAlertOccurrences:       3,
			StationAlertWindowMinutes:     15,
			HighRiskCustomerEvents:        2,
			HighRiskCustomerScore:         80,
		},
		Stream: StreamConfig{
			Host: "127.0.0.1",
			Port: 8765,
		},
		Database: DatabaseConfig{
			MaxConns:        4,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			OTLPEndpoint:  "localhost:4317",
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// STORESIGHT_-prefixed environment variables, then validates it. Invalid
// thresholds fail here, before any detector is constructed.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Double underscore separates nesting levels so single underscores
	// survive inside key names: STORESIGHT_DETECTION__QUEUE_LENGTH_ALERT.
	if err := k.Load(env.Provider("STORESIGHT_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, "STORESIGHT_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
