package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
)

// EnvPrefix is the prefix of every environment override, e.g. TFT_PIPELINE_TARGET_COL
const EnvPrefix = "TFT"

// DateLayout is the layout of every configured calendar date
const DateLayout = "2006-01-02"

// RatioTolerance is the allowed deviation of the split ratio sum from 1
const RatioTolerance = 1e-6

// Config represents the complete application configuration
type Config struct {
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir      string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	RawFile      string `yaml:"raw_file" envconfig:"RAW_FILE"`
	ManifestFile string `yaml:"manifest_file" envconfig:"MANIFEST_FILE"`
}

// TelemetryConfig selects the OpenTelemetry exporters
type TelemetryConfig struct {
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// PipelineConfig describes the panel and every preparation stage
type PipelineConfig struct {
	GroupCols []string `yaml:"group_cols" envconfig:"GROUP_COLS" validate:"min=1,dive,required"`
	TimeCol   string   `yaml:"time_col" envconfig:"TIME_COL" validate:"required"`
	TargetCol string   `yaml:"target_col" envconfig:"TARGET_COL" validate:"required"`
	Format    string   `yaml:"format" envconfig:"FORMAT" validate:"oneof=parquet csv"`
	// Workers bounds per-group parallelism; 0 means one worker per CPU
	Workers int `yaml:"workers" envconfig:"WORKERS" validate:"gte=0"`

	Cleaning CleaningConfig `yaml:"cleaning" envconfig:"CLEANING"`
	Features FeaturesConfig `yaml:"features" envconfig:"FEATURES"`
	Split    SplitConfig    `yaml:"split" envconfig:"SPLIT"`
	Dataset  DatasetConfig  `yaml:"dataset" envconfig:"DATASET"`
}

// CleaningConfig configures level alignment and historical imputation
type CleaningConfig struct {
	Alignment AlignmentConfig `yaml:"alignment" envconfig:"ALIGNMENT"`
	Outliers  []OutlierConfig `yaml:"outliers" ignored:"true" validate:"dive"`
	Regimes   []RegimeConfig  `yaml:"regimes" ignored:"true" validate:"dive"`
}

// AlignmentConfig scales yearly levels to a reference year
type AlignmentConfig struct {
	Enabled       bool     `yaml:"enabled" envconfig:"ENABLED"`
	LevelCols     []string `yaml:"level_cols" envconfig:"LEVEL_COLS"`
	ReferenceYear int      `yaml:"reference_year" envconfig:"REFERENCE_YEAR" validate:"gte=1900"`
}

// OutlierConfig marks one date as missing across all groups
type OutlierConfig struct {
	Date    string `yaml:"date" validate:"required,datetime=2006-01-02"`
	Period  int    `yaml:"period" validate:"gte=1"`
	Repeats int    `yaml:"repeats" validate:"gte=1"`
}

// RegimeConfig marks a (year, month) span as missing and flags it
type RegimeConfig struct {
	Year       int    `yaml:"year" validate:"gte=1900"`
	StartMonth int    `yaml:"start_month" validate:"gte=1,lte=12"`
	EndMonth   int    `yaml:"end_month" validate:"gte=1,lte=12,gtefield=StartMonth"`
	FlagCol    string `yaml:"flag_col" validate:"required"`
	Period     int    `yaml:"period" validate:"gte=1"`
	Repeats    int    `yaml:"repeats" validate:"gte=1"`
}

// FeaturesConfig configures the column-adding stages
type FeaturesConfig struct {
	Cyclical CyclicalConfig `yaml:"cyclical" envconfig:"CYCLICAL"`
	Lags     LagConfig      `yaml:"lags" envconfig:"LAGS"`
	Calendar CalendarConfig `yaml:"calendar" envconfig:"CALENDAR"`
}

// CyclicalConfig configures the sin/cos phase encoder
type CyclicalConfig struct {
	Enabled       bool                `yaml:"enabled" envconfig:"ENABLED"`
	DatetimeCol   string              `yaml:"datetime_col" envconfig:"DATETIME_COL"`
	Prefix        string              `yaml:"prefix" envconfig:"PREFIX" validate:"required"`
	Timezone      string              `yaml:"timezone" envconfig:"TIMEZONE" validate:"required"`
	CoerceInvalid bool                `yaml:"coerce_invalid" envconfig:"COERCE_INVALID"`
	DropIndexCols bool                `yaml:"drop_index_cols" envconfig:"DROP_INDEX_COLS"`
	Periodicities []PeriodicityConfig `yaml:"periodicities" ignored:"true" validate:"dive"`
}

// PeriodicityConfig is one named cyclical feature
type PeriodicityConfig struct {
	Name   string  `yaml:"name" validate:"required"`
	Kind   string  `yaml:"kind" validate:"oneof=dayofweek month dayofyear isoweek hour minute quarter"`
	Period float64 `yaml:"period"`
}

// LagConfig configures lag and rolling features of the target
type LagConfig struct {
	Enabled     bool     `yaml:"enabled" envconfig:"ENABLED"`
	Lags        []int    `yaml:"lags" envconfig:"LAGS" validate:"dive,gt=0"`
	RollWindows []int    `yaml:"roll_windows" envconfig:"ROLL_WINDOWS" validate:"dive,gt=0"`
	RollStats   []string `yaml:"roll_stats" envconfig:"ROLL_STATS" validate:"dive,oneof=mean std min max median sum"`
	Prefix      string   `yaml:"prefix" envconfig:"PREFIX" validate:"required"`
}

// CalendarConfig configures calendar, time index and holiday columns
type CalendarConfig struct {
	Enabled        bool     `yaml:"enabled" envconfig:"ENABLED"`
	TimeIndexCol   string   `yaml:"time_index_col" envconfig:"TIME_INDEX_COL" validate:"required"`
	HolidayCountry string   `yaml:"holiday_country" envconfig:"HOLIDAY_COUNTRY"`
	ExtraHolidays  []string `yaml:"extra_holidays" envconfig:"EXTRA_HOLIDAYS" validate:"dive,datetime=2006-01-02"`
}

// SplitConfig configures the time-based partition
type SplitConfig struct {
	ValStart  string    `yaml:"val_start" envconfig:"VAL_START" validate:"omitempty,datetime=2006-01-02"`
	TestStart string    `yaml:"test_start" envconfig:"TEST_START" validate:"omitempty,datetime=2006-01-02"`
	Ratios    []float64 `yaml:"split_ratios" envconfig:"RATIOS" validate:"len=3,dive,gte=0,lte=1"`
	ScaleCols []string  `yaml:"scale_cols" envconfig:"SCALE_COLS"`
	MinRows   int       `yaml:"min_rows" envconfig:"MIN_ROWS" validate:"gte=1"`
}

// DatasetConfig configures role classification and the dataset spec
type DatasetConfig struct {
	KnownRealPrefixes    []string `yaml:"known_real_prefixes" envconfig:"KNOWN_REAL_PREFIXES"`
	LagPrefixes          []string `yaml:"lag_prefixes" envconfig:"LAG_PREFIXES"`
	TreatCalendarAsKnown bool     `yaml:"treat_calendar_as_known" envconfig:"TREAT_CALENDAR_AS_KNOWN"`
	CalendarCols         []string `yaml:"calendar_cols" envconfig:"CALENDAR_COLS"`
	HolidayPrefix        string   `yaml:"holiday_prefix" envconfig:"HOLIDAY_PREFIX"`
	FlagCols             []string `yaml:"flag_cols" envconfig:"FLAG_COLS"`
	MaxEncoderLength     int      `yaml:"max_encoder_length" envconfig:"MAX_ENCODER_LENGTH" validate:"gt=0"`
	MaxPredictionLength  int      `yaml:"max_prediction_length" envconfig:"MAX_PREDICTION_LENGTH" validate:"gt=0"`
}

// Load builds the configuration from defaults, then the YAML file (if any),
// then TFT_* environment variables. An empty path searches the usual locations.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getConfigFilePath()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("failed to load config file %s", path), err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile overlays YAML values onto cfg; keys absent from the file keep their value
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Validate checks struct tags and the cross-field rules of the pipeline.
// Every failure is a CONFIG error raised before any I/O happens.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var msgs []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				msgs = append(msgs, formatValidationError(fe))
			}
		} else {
			msgs = append(msgs, err.Error())
		}
		return apperrors.NewConfigError("invalid configuration: "+strings.Join(msgs, "; "), err)
	}

	p := c.Pipeline
	for _, per := range p.Features.Cyclical.Periodicities {
		if per.Period <= 1 {
			return apperrors.NewConfigError(fmt.Sprintf("periodicity %s: period must be > 1, got %g", per.Name, per.Period), nil)
		}
	}
	if _, err := time.LoadLocation(p.Features.Cyclical.Timezone); err != nil {
		return apperrors.NewConfigError(fmt.Sprintf("unknown timezone %q", p.Features.Cyclical.Timezone), err)
	}

	s := p.Split
	if (s.ValStart == "") != (s.TestStart == "") {
		return apperrors.NewConfigError("val_start and test_start must be set together", nil)
	}
	if s.ValStart != "" {
		valStart, _ := time.Parse(DateLayout, s.ValStart)
		testStart, _ := time.Parse(DateLayout, s.TestStart)
		if !valStart.Before(testStart) {
			return apperrors.NewConfigError(fmt.Sprintf("val_start %s must be before test_start %s", s.ValStart, s.TestStart), nil)
		}
	} else {
		sum := 0.0
		for _, r := range s.Ratios {
			sum += r
		}
		if math.Abs(sum-1) > RatioTolerance {
			return apperrors.NewConfigError(fmt.Sprintf("split ratios must sum to 1, got %g", sum), nil)
		}
	}

	return nil
}

// formatValidationError formats validation error messages
func formatValidationError(err validator.FieldError) string {
	field := err.Namespace()
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, err.Param())
	case "len":
		return fmt.Sprintf("%s must have exactly %s entries", field, err.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(err.Param(), " ", ", "))
	case "datetime":
		return fmt.Sprintf("%s must be a date in %s format", field, err.Param())
	case "gt", "gte", "lte", "gtefield":
		return fmt.Sprintf("%s failed %s=%s", field, err.Tag(), err.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/tftprep.log",
		},
		Paths: PathsConfig{
			DataDir: "data",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
			SampleRatio:    1.0,
		},
		Pipeline: PipelineConfig{
			GroupCols: []string{"country", "store", "product"},
			TimeCol:   "date",
			TargetCol: "num_sold",
			Format:    "parquet",
			Cleaning: CleaningConfig{
				Alignment: AlignmentConfig{
					Enabled:       true,
					LevelCols:     []string{"country"},
					ReferenceYear: 2020,
				},
				Outliers: []OutlierConfig{
					{Date: "2020-01-01", Period: 365, Repeats: 1},
				},
				Regimes: []RegimeConfig{
					{Year: 2020, StartMonth: 3, EndMonth: 5, FlagCol: "is_lockdown_period", Period: 52 * 7, Repeats: 1},
				},
			},
			Features: FeaturesConfig{
				Cyclical: CyclicalConfig{
					Enabled:       true,
					Prefix:        "cyc",
					Timezone:      "Europe/Berlin",
					CoerceInvalid: true,
					DropIndexCols: true,
					Periodicities: []PeriodicityConfig{
						{Name: "dow", Kind: "dayofweek", Period: 7},
						{Name: "month", Kind: "month", Period: 12},
						{Name: "doy", Kind: "dayofyear", Period: 366},
						{Name: "week", Kind: "isoweek", Period: 53},
					},
				},
				Lags: LagConfig{
					Enabled:     true,
					Lags:        []int{1, 7, 14},
					RollWindows: []int{7},
					RollStats:   []string{"mean"},
					Prefix:      "lag_",
				},
				Calendar: CalendarConfig{
					Enabled:        true,
					TimeIndexCol:   "time_idx",
					HolidayCountry: "de",
				},
			},
			Split: SplitConfig{
				Ratios:  []float64{0.8, 0.1, 0.1},
				MinRows: 10,
			},
			Dataset: DatasetConfig{
				KnownRealPrefixes:    []string{"cyc_"},
				LagPrefixes:          []string{"lag_"},
				TreatCalendarAsKnown: true,
				CalendarCols:         []string{"year", "month", "day", "dayofweek", "weekofyear", "is_weekend"},
				HolidayPrefix:        "is_holiday",
				FlagCols:             []string{"is_lockdown_period"},
				MaxEncoderLength:     28,
				MaxPredictionLength:  7,
			},
		},
	}
}
