package reader

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"marginflow/logger"
	"marginflow/models"
)

// ReadIndicatorFile reads a monthly indicator CSV. Files are comma separated
// with a header row; some historic exports are latin-1 encoded. A missing file
// yields an empty frame.
func ReadIndicatorFile(path string) (*models.Frame, error) {
	log := logger.GetLogger().WithComponent("indicator-reader")

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithFields(logger.Fields{"path": path}).Warn("indicator file not found")
			return &models.Frame{}, nil
		}
		return nil, fmt.Errorf("read indicator %s: %w", path, err)
	}

	if !utf8.Valid(raw) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, fmt.Errorf("decode indicator %s: %w", path, err)
		}
		raw = decoded
	}

	r := csv.NewReader(strings.NewReader(string(raw)))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse indicator %s: %w", path, err)
	}
	if len(records) == 0 {
		return &models.Frame{}, nil
	}

	f := &models.Frame{Columns: records[0]}
	for i := range f.Columns {
		f.Columns[i] = strings.TrimSpace(f.Columns[i])
	}
	f.Rows = records[1:]
	return f, nil
}
