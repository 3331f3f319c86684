package writer

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	appconfig "marginflow/config"
	"marginflow/internal/metadata"
	"marginflow/logger"
	"marginflow/models"
)

// csvHeader is the fixed column order of the monthly result files.
var csvHeader = []string{"Unit", "Datetime_Madrid", "Datetime_UTC1", "Sentido", "Quantity", "Price", "Margin", "Market"}

// MonthlyWriter persists aggregated records as one CSV file per calendar
// month, with an optional parquet sidecar and optional S3 upload. Written
// files are tracked and described in a run manifest on Close.
type MonthlyWriter struct {
	cfg      *appconfig.Config
	s3       *s3Uploader
	manifest *metadata.Manifest
	log      *logger.Log
}

// NewMonthlyWriter prepares the output directory and, when configured, the
// S3 client. It fails early so a run never processes days it cannot persist.
func NewMonthlyWriter(cfg *appconfig.Config) (*MonthlyWriter, error) {
	if err := os.MkdirAll(cfg.Writer.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	w := &MonthlyWriter{
		cfg:      cfg,
		manifest: metadata.NewManifest(cfg.Marginflow.Name, cfg.Marginflow.Version),
		log:      logger.GetLogger(),
	}
	if cfg.Storage.S3.Enabled {
		up, err := newS3Uploader(cfg)
		if err != nil {
			return nil, err
		}
		w.s3 = up
	}
	return w, nil
}

// WriteMonth writes one month's records. The CSV file is the primary
// output; parquet and S3 failures are reported but do not fail the month.
func (w *MonthlyWriter) WriteMonth(ctx context.Context, month string, records []models.AggregatedRecord) error {
	log := w.log.WithComponent("monthly-writer").WithFields(logger.Fields{"month": month, "rows": len(records)})
	start := time.Now()

	name := fmt.Sprintf("unit_margin_%s.csv", month)
	path := filepath.Join(w.cfg.Writer.OutputDir, name)
	size, err := w.writeCSV(path, records)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	logger.IncrementFileWritten(size)
	w.manifest.AddFile(metadata.OutputFile{Path: name, Month: month, Rows: len(records), SizeBytes: size})
	log.WithFields(logger.Fields{
		"file":        name,
		"bytes":       size,
		"duration_ms": float64(time.Since(start).Nanoseconds()) / 1e6,
	}).Info("month written")

	if w.cfg.Writer.Formats.Parquet.Enabled {
		pqName := fmt.Sprintf("unit_margin_%s.parquet", month)
		pqPath := filepath.Join(w.cfg.Writer.OutputDir, pqName)
		pqSize, err := writeParquet(pqPath, w.cfg.Writer.Formats.Parquet.Compression, records)
		if err != nil {
			log.WithComponent("monthly-writer").WithError(err).Error("parquet sidecar failed")
		} else {
			logger.IncrementFileWritten(pqSize)
			w.manifest.AddFile(metadata.OutputFile{Path: pqName, Month: month, Rows: len(records), SizeBytes: pqSize})
		}
	}

	if w.s3 != nil {
		if err := w.s3.uploadFile(ctx, path, name); err != nil {
			log.WithComponent("monthly-writer").WithError(err).Error("s3 upload failed")
		}
	}
	return nil
}

// Close writes the run manifest next to the output files.
func (w *MonthlyWriter) Close(ctx context.Context) error {
	path := filepath.Join(w.cfg.Writer.OutputDir, "manifest.json")
	if err := w.manifest.WriteFile(path); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if w.s3 != nil {
		if err := w.s3.uploadFile(ctx, path, "manifest.json"); err != nil {
			w.log.WithComponent("monthly-writer").WithError(err).Error("manifest upload failed")
		}
	}
	return nil
}

func (w *MonthlyWriter) writeCSV(path string, records []models.AggregatedRecord) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	for _, rec := range records {
		if err := cw.Write(csvRow(rec)); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// csvRow renders one record. Absent prices and margins become empty cells,
// never zeros: a blank cell means the market publishes no price.
func csvRow(rec models.AggregatedRecord) []string {
	return []string{
		rec.Unit,
		rec.Local.Format(time.RFC3339),
		rec.Ref.Format(time.RFC3339),
		rec.Direction,
		formatFloat(rec.Quantity),
		formatOptional(rec.Price),
		formatOptional(rec.Margin),
		rec.Market,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
