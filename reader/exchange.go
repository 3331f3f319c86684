package reader

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"marginflow/logger"
	"marginflow/models"
)

// Column layouts of the known exchange flat-file series. Files are
// semicolon-delimited latin-1 text with a short preamble and a `*` footer.
type seriesLayout struct {
	skip  int
	names []string
}

var seriesLayouts = []struct {
	match  string
	layout seriesLayout
}{
	// marginalpdbc must be probed before pdbc: the latter substring matches both.
	{"marginalpdbc", seriesLayout{1, []string{"Year", "Month", "Day", "Period", "MarginalPT", "MarginalES"}}},
	{"pdbc", seriesLayout{1, []string{"Year", "Month", "Day", "Period", "Unit", "Quantity", "Unused", "Type", "NumOf"}}},
	{"pdvd", seriesLayout{2, []string{"Year", "Month", "Day", "Period", "Unit", "Quantity", "Type"}}},
	{"pibci", seriesLayout{1, []string{"Year", "Month", "Day", "Period", "Session", "Unit", "Quantity", "Flag", "Type"}}},
}

// ReadExchangeFile extracts one day of an exchange series from its archive.
// The archive holds one file per day (or per session), possibly in several
// versions; the highest version wins. A missing archive or missing inner file
// yields an empty frame, not an error.
func ReadExchangeFile(zipPath, innerPrefix string) (*models.Frame, error) {
	log := logger.GetLogger().WithComponent("exchange-reader")

	if _, err := os.Stat(zipPath); err != nil {
		log.WithFields(logger.Fields{"path": zipPath}).Warn("archive not found")
		return &models.Frame{}, nil
	}

	z, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", zipPath, err)
	}
	defer z.Close()

	var best *zip.File
	bestVersion := -1
	for _, f := range z.File {
		if !strings.Contains(f.Name, innerPrefix) {
			continue
		}
		if v := fileVersion(f.Name); v > bestVersion {
			best = f
			bestVersion = v
		}
	}
	if best == nil {
		return &models.Frame{}, nil
	}

	rc, err := best.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s in %s: %w", best.Name, zipPath, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(charmap.ISO8859_1.NewDecoder().Reader(rc))
	if err != nil {
		return nil, fmt.Errorf("read %s in %s: %w", best.Name, zipPath, err)
	}
	content := string(raw)

	lower := strings.ToLower(best.Name)
	if strings.Contains(lower, "trades") {
		return parseTrades(content), nil
	}
	for _, s := range seriesLayouts {
		if strings.Contains(lower, s.match) {
			return parseStandard(content, s.layout.skip, s.layout.names), nil
		}
	}
	return parseGeneric(content), nil
}

// fileVersion orders inner files by their extension. Bare ".v" files are
// final publications and outrank every numbered revision.
func fileVersion(name string) int {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return 0
	}
	ext := strings.ToLower(name[idx+1:])
	if ext == "v" {
		return 999
	}
	if n, err := strconv.Atoi(ext); err == nil {
		return n
	}
	return 0
}

func dataLines(content string) []string {
	var lines []string
	for _, l := range strings.Split(content, "\n") {
		l = strings.TrimRight(l, "\r")
		t := strings.TrimSpace(l)
		if t == "" || strings.HasPrefix(t, "*") {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

func splitRecord(line string, width int) []string {
	parts := strings.Split(line, ";")
	// A trailing semicolon adds one empty field.
	for len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	if width > 0 && len(parts) > width {
		parts = parts[:width]
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseStandard(content string, skip int, names []string) *models.Frame {
	lines := dataLines(content)
	if len(lines) <= skip {
		return &models.Frame{}
	}
	f := &models.Frame{Columns: names}
	for _, l := range lines[skip:] {
		if row := splitRecord(l, len(names)); len(row) > 0 {
			f.Rows = append(f.Rows, row)
		}
	}
	return f
}

// parseTrades reads the continuous-trading report. The header line sits below
// a free-form preamble and is located by its first two column names.
func parseTrades(content string) *models.Frame {
	lines := dataLines(content)
	headerIdx := -1
	for i, l := range lines {
		if strings.HasPrefix(l, "Fecha;Contrato") || strings.HasPrefix(l, "Date;Contract") {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return &models.Frame{}
	}
	f := &models.Frame{Columns: splitRecord(lines[headerIdx], 0)}
	for _, l := range lines[headerIdx+1:] {
		if row := splitRecord(l, len(f.Columns)); len(row) > 0 {
			f.Rows = append(f.Rows, row)
		}
	}
	return f
}

// parseGeneric handles unknown series: first data line is the header.
func parseGeneric(content string) *models.Frame {
	lines := dataLines(content)
	if len(lines) == 0 {
		return &models.Frame{}
	}
	f := &models.Frame{Columns: splitRecord(lines[0], 0)}
	for _, l := range lines[1:] {
		if row := splitRecord(l, len(f.Columns)); len(row) > 0 {
			f.Rows = append(f.Rows, row)
		}
	}
	return f
}
