package reader

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"marginflow/logger"
	"marginflow/models"
)

// openWorkbook opens the single workbook inside a system operator daily
// archive. A missing archive returns (nil, nil); the caller treats a nil
// workbook as an empty source.
func openWorkbook(zipPath string) (*excelize.File, error) {
	log := logger.GetLogger().WithComponent("operator-reader")

	if _, err := os.Stat(zipPath); err != nil {
		log.WithFields(logger.Fields{"path": zipPath}).Warn("archive not found")
		return nil, nil
	}

	z, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", zipPath, err)
	}
	defer z.Close()

	var entry *zip.File
	for _, f := range z.File {
		lower := strings.ToLower(f.Name)
		if strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls") {
			entry = f
			break
		}
	}
	if entry == nil {
		log.WithFields(logger.Fields{"path": zipPath}).Warn("no workbook found in archive")
		return nil, nil
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s in %s: %w", entry.Name, zipPath, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s in %s: %w", entry.Name, zipPath, err)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse workbook %s in %s: %w", entry.Name, zipPath, err)
	}
	return wb, nil
}

// sheetFrame extracts one sheet of the workbook as a raw grid: no header
// promotion happens here, the extractor does that. A missing sheet yields an
// empty frame.
func sheetFrame(wb *excelize.File, sheet string) *models.Frame {
	if wb == nil {
		return &models.Frame{}
	}
	rows, err := wb.GetRows(sheet)
	if err != nil {
		logger.GetLogger().WithComponent("operator-reader").
			WithFields(logger.Fields{"sheet": sheet}).Debug("sheet not found")
		return &models.Frame{}
	}
	return &models.Frame{Rows: rows}
}
