// Package config builds the run configuration once at process start. Values
// come from the environment; the category table has built-in defaults and can
// be replaced by a YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/printintake/internal/models"
	"github.com/Lllllllleong/printintake/internal/ocr"
)

// SMTPConfig holds the outbound mail settings used for operator notices.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// Config holds every setting a run needs. It is built once by Load and passed
// by pointer into each stage.
type Config struct {
	SourceRoot  string
	OutputRoot  string
	ArchiveRoot string
	StagingDir  string
	ErrorLogDir string
	OCRWorkDir  string

	ArchivePrefix     string
	ArchivePassword   string
	ErrorLogRetention time.Duration

	OCRConcurrency     int
	ExtractConcurrency int
	OCRTimeout         time.Duration
	ExtractTimeout     time.Duration
	RenderDPI          float64
	AddressZone        ocr.Zone
	TessdataPrefix     string
	OCRLanguage        string

	SMTP SMTPConfig

	ProjectID        string
	ArchiveBucket    string
	LedgerCollection string

	LogLevel slog.Level

	Categories []models.Category
}

// DefaultCategories is the built-in routing table.
func DefaultCategories() []models.Category {
	return []models.Category{
		{Key: "Aloha", SourceFolder: "Aloha Trust", DestinationFolder: "aloha", Orientation: models.Portrait, Enabled: true},
		{Key: "Premier", SourceFolder: "CCSAPB", DestinationFolder: "CCSAPB", Orientation: models.Portrait, Enabled: true},
		{Key: "PremierLandscape", SourceFolder: "CCSAPBL", DestinationFolder: "CCSAPBL", Orientation: models.Landscape, Enabled: true},
		{Key: "SpecialBilling", SourceFolder: "CCSASB", DestinationFolder: "CCSASB", Orientation: models.Portrait, Enabled: true},
		{Key: "TotalTraffic", SourceFolder: "CCSATT", DestinationFolder: "CCSATT", Orientation: models.Portrait, Enabled: true},
		{Key: "Radio", SourceFolder: "Clear Channel", DestinationFolder: "iheart", Orientation: models.Portrait, Enabled: true},
		{Key: "LockboxInsert", SourceFolder: "LockboxInsert", DestinationFolder: "iheart_insert", Orientation: models.Portrait, Enabled: false},
	}
}

// DefaultAddressZone is the mailing-address region of page one, in inches.
var DefaultAddressZone = ocr.Zone{X: 0, Y: 2, Width: 4, Height: 1.4}

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := GetEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := GetEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := GetEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Load reads the configuration from the environment. workDir anchors the
// local staging, OCR scratch and error-log directories, mirroring a utility
// that keeps its working folders next to the executable.
func Load(workDir string) (*Config, error) {
	cfg := &Config{
		SourceRoot:       GetEnv("SOURCE_ROOT", ""),
		OutputRoot:       GetEnv("OUTPUT_ROOT", ""),
		ArchiveRoot:      GetEnv("ARCHIVE_ROOT", ""),
		StagingDir:       GetEnv("STAGING_DIR", filepath.Join(workDir, "Input")),
		ErrorLogDir:      GetEnv("ERROR_LOG_DIR", filepath.Join(workDir, "ErrorLogs")),
		OCRWorkDir:       GetEnv("OCR_WORK_DIR", filepath.Join(workDir, "Temp")),
		ArchivePrefix:    GetEnv("ARCHIVE_PREFIX", "Clear Channel"),
		ArchivePassword:  GetEnv("ARCHIVE_PASSWORD", ""),
		AddressZone:      DefaultAddressZone,
		TessdataPrefix:   GetEnv("TESSDATA_PREFIX", ""),
		OCRLanguage:      GetEnv("OCR_LANGUAGE", "eng"),
		ProjectID:        GetEnv("PROJECT_ID", ""),
		ArchiveBucket:    GetEnv("ARCHIVE_BUCKET", ""),
		LedgerCollection: GetEnv("LEDGER_COLLECTION", "intakeRuns"),
		SMTP: SMTPConfig{
			Host:     GetEnv("SMTP_HOST", ""),
			Username: GetEnv("SMTP_USERNAME", ""),
			Password: GetEnv("SMTP_PASSWORD", ""),
			From:     GetEnv("SMTP_FROM", ""),
			To:       GetEnv("SMTP_TO", ""),
		},
	}

	var err error
	var errs []error
	collect := func(e error) {
		if e != nil {
			errs = append(errs, e)
		}
	}

	cfg.OCRConcurrency, err = getEnvInt("OCR_CONCURRENCY", runtime.NumCPU())
	collect(err)
	cfg.ExtractConcurrency, err = getEnvInt("EXTRACT_CONCURRENCY", 4)
	collect(err)
	cfg.SMTP.Port, err = getEnvInt("SMTP_PORT", 587)
	collect(err)
	cfg.RenderDPI, err = getEnvFloat("RENDER_DPI", 300)
	collect(err)
	cfg.OCRTimeout, err = getEnvDuration("OCR_TIMEOUT", 2*time.Minute)
	collect(err)
	cfg.ExtractTimeout, err = getEnvDuration("EXTRACT_TIMEOUT", 5*time.Minute)
	collect(err)
	cfg.ErrorLogRetention, err = getEnvDuration("ERROR_LOG_RETENTION", 30*24*time.Hour)
	collect(err)
	collect(cfg.LogLevel.UnmarshalText([]byte(GetEnv("LOG_LEVEL", "info"))))
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to parse environment: %w", errors.Join(errs...))
	}

	cfg.Categories = DefaultCategories()
	if path := GetEnv("CATEGORIES_FILE", ""); path != "" {
		cats, err := LoadCategories(path)
		if err != nil {
			return nil, err
		}
		cfg.Categories = cats
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type categoryFile struct {
	Categories []struct {
		Key         string `yaml:"key"`
		Source      string `yaml:"source"`
		Destination string `yaml:"destination"`
		Orientation string `yaml:"orientation"`
		Enabled     *bool  `yaml:"enabled"`
	} `yaml:"categories"`
}

// LoadCategories reads a category table from a YAML file. A category with no
// enabled key is enabled.
func LoadCategories(path string) ([]models.Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}
	return ParseCategories(data)
}

// ParseCategories decodes a YAML category table.
func ParseCategories(data []byte) ([]models.Category, error) {
	var f categoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse categories: %w", err)
	}
	cats := make([]models.Category, 0, len(f.Categories))
	for _, c := range f.Categories {
		o, err := models.ParseOrientation(strings.ToLower(strings.TrimSpace(c.Orientation)))
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", c.Key, err)
		}
		enabled := true
		if c.Enabled != nil {
			enabled = *c.Enabled
		}
		dest := c.Destination
		if dest == "" {
			dest = c.Source
		}
		cats = append(cats, models.Category{
			Key:               c.Key,
			SourceFolder:      c.Source,
			DestinationFolder: dest,
			Orientation:       o,
			Enabled:           enabled,
		})
	}
	return cats, nil
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	var errs []error
	if c.SourceRoot == "" {
		errs = append(errs, errors.New("SOURCE_ROOT environment variable must be set"))
	}
	if c.OutputRoot == "" {
		errs = append(errs, errors.New("OUTPUT_ROOT environment variable must be set"))
	}
	if c.ArchiveRoot == "" {
		errs = append(errs, errors.New("ARCHIVE_ROOT environment variable must be set"))
	}
	if c.OCRConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("OCR_CONCURRENCY must be positive, got %d", c.OCRConcurrency))
	}
	if c.ExtractConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("EXTRACT_CONCURRENCY must be positive, got %d", c.ExtractConcurrency))
	}
	if c.RenderDPI <= 0 {
		errs = append(errs, fmt.Errorf("RENDER_DPI must be positive, got %v", c.RenderDPI))
	}
	if c.AddressZone.Empty() {
		errs = append(errs, errors.New("address zone must have a positive size"))
	}

	seen := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		switch {
		case cat.Key == "":
			errs = append(errs, errors.New("category with empty key"))
		case seen[cat.Key]:
			errs = append(errs, fmt.Errorf("duplicate category key %q", cat.Key))
		case cat.SourceFolder == "" || cat.DestinationFolder == "":
			errs = append(errs, fmt.Errorf("category %q needs source and destination folders", cat.Key))
		}
		if cat.Orientation != models.Portrait && cat.Orientation != models.Landscape {
			errs = append(errs, fmt.Errorf("category %q: unknown orientation %q", cat.Key, cat.Orientation))
		}
		seen[cat.Key] = true
	}
	return errors.Join(errs...)
}

// EnabledCategories returns the categories to process, in table order.
func (c *Config) EnabledCategories() []models.Category {
	out := make([]models.Category, 0, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.Enabled {
			out = append(out, cat)
		}
	}
	return out
}

// SourceDir is the drop folder for a category.
func (c *Config) SourceDir(cat models.Category) string {
	return filepath.Join(c.SourceRoot, cat.SourceFolder)
}

// DestinationPath is where a category's merged output is delivered:
// <OutputRoot>/<dest>/<dest>.pdf.
func (c *Config) DestinationPath(cat models.Category) string {
	return filepath.Join(c.OutputRoot, cat.DestinationFolder, cat.DestinationFolder+".pdf")
}
