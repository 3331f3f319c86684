package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Marginflow MarginflowConfig `yaml:"marginflow"`
	Paths      PathsConfig      `yaml:"paths"`
	Processing ProcessingConfig `yaml:"processing"`
	Writer     WriterConfig     `yaml:"writer"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type MarginflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// PathsConfig holds the roots of the three source trees plus an optional
// market definition file overriding the built-in catalogue.
type PathsConfig struct {
	OperatorDir  string `yaml:"operator_dir"`  // daily workbook archives, one subdir per year
	IndicatorDir string `yaml:"indicator_dir"` // monthly indicator CSVs, one subdir per id
	ExchangeDir  string `yaml:"exchange_dir"`  // exchange flat-file archives, one subdir per series
	MarketsFile  string `yaml:"markets_file"`  // empty = built-in catalogue
}

type ProcessingConfig struct {
	MaxWorkers  int      `yaml:"max_workers"`
	TargetUnits []string `yaml:"target_units"`
	StartDate   string   `yaml:"start_date"` // YYYYMMDD, inclusive
	EndDate     string   `yaml:"end_date"`   // YYYYMMDD, inclusive
	Years       []int    `yaml:"years"`      // used when no explicit range is set
	Markets     []string `yaml:"markets"`    // empty = all defined markets
}

type WriterConfig struct {
	OutputDir string        `yaml:"output_dir"`
	Formats   FormatsConfig `yaml:"formats"`
}

type FormatsConfig struct {
	Parquet ParquetConfig `yaml:"parquet"`
}

type ParquetConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Compression string `yaml:"compression"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Processing: ProcessingConfig{MaxWorkers: 1},
		Writer:     WriterConfig{OutputDir: "output"},
		Logging:    LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	if v := os.Getenv("MARGINFLOW_OUTPUT_DIR"); v != "" {
		config.Writer.OutputDir = strings.TrimSpace(v)
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// DateRange resolves the configured date window to concrete inclusive bounds.
// An explicit start/end pair wins over the year list.
func (c *Config) DateRange() (start, end time.Time, err error) {
	if c.Processing.StartDate != "" || c.Processing.EndDate != "" {
		start, err = time.Parse("20060102", c.Processing.StartDate)
		if err != nil {
			return start, end, fmt.Errorf("invalid processing.start_date %q: %w", c.Processing.StartDate, err)
		}
		end, err = time.Parse("20060102", c.Processing.EndDate)
		if err != nil {
			return start, end, fmt.Errorf("invalid processing.end_date %q: %w", c.Processing.EndDate, err)
		}
		if end.Before(start) {
			return start, end, fmt.Errorf("processing.end_date precedes processing.start_date")
		}
		return start, end, nil
	}
	if len(c.Processing.Years) == 0 {
		return start, end, fmt.Errorf("no date range configured: set processing.start_date/end_date or processing.years")
	}
	minYear, maxYear := c.Processing.Years[0], c.Processing.Years[0]
	for _, y := range c.Processing.Years[1:] {
		if y < minYear {
			minYear = y
		}
		if y > maxYear {
			maxYear = y
		}
	}
	start = time.Date(minYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end = time.Date(maxYear, time.December, 31, 0, 0, 0, 0, time.UTC)
	return start, end, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Marginflow.Name == "" {
		return fmt.Errorf("marginflow.name is required")
	}

	if cfg.Marginflow.Version == "" {
		return fmt.Errorf("marginflow.version is required")
	}

	if cfg.Processing.MaxWorkers <= 0 {
		return fmt.Errorf("processing.max_workers must be greater than 0")
	}

	if len(cfg.Processing.TargetUnits) == 0 {
		return fmt.Errorf("processing.target_units must not be empty")
	}

	if _, _, err := cfg.DateRange(); err != nil {
		return err
	}

	if cfg.Writer.OutputDir == "" {
		return fmt.Errorf("writer.output_dir is required")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	// Source roots must exist in production-like environments; in development
	// a missing tree only surfaces as empty reads.
	if IsProductionLike(AppEnvironment()) {
		for name, dir := range map[string]string{
			"paths.operator_dir":  cfg.Paths.OperatorDir,
			"paths.indicator_dir": cfg.Paths.IndicatorDir,
			"paths.exchange_dir":  cfg.Paths.ExchangeDir,
		} {
			if dir == "" {
				return fmt.Errorf("%s is required", name)
			}
			if _, err := os.Stat(dir); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
