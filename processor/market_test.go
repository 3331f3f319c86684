package processor

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"marginflow/config"
	"marginflow/logger"
	"marginflow/models"
	"marginflow/reader"
)

// writeZip creates an archive with one inner text file.
func writeZip(t *testing.T, path, innerName, content string) {
	t.Helper()
	writeZipEntries(t, path, map[string]string{innerName: content})
}

func writeZipEntries(t *testing.T, path string, files map[string]string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write zip: %v", err)
	}
}

func mustDate(t *testing.T, ymd string) time.Time {
	t.Helper()
	day, err := time.Parse("20060102", ymd)
	if err != nil {
		t.Fatalf("parse date %s: %v", ymd, err)
	}
	return day
}

// writeWorkbookZip builds a one-sheet workbook and wraps it in an archive
// the way the operator publishes its daily reports.
func writeWorkbookZip(t *testing.T, path, sheet string, rows [][]interface{}) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	wb := excelize.NewFile()
	defer wb.Close()
	if _, err := wb.NewSheet(sheet); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := wb.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var xlsx bytes.Buffer
	if err := wb.Write(&xlsx); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("I90DIA.xlsx")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := w.Write(xlsx.Bytes()); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write zip: %v", err)
	}
}

func testPaths(t *testing.T) config.PathsConfig {
	t.Helper()
	root := t.TempDir()
	return config.PathsConfig{
		OperatorDir:  filepath.Join(root, "i90"),
		IndicatorDir: filepath.Join(root, "indicators"),
		ExchangeDir:  filepath.Join(root, "exchange"),
	}
}

func newTestProcessor(paths config.PathsConfig, units []string) *MarketProcessor {
	log := logger.GetLogger().WithComponent("processor-test")
	return NewMarketProcessor(paths, units, reader.NewCache(), log)
}

func TestProcessExchangeAuctionWithExchangePrice(t *testing.T) {
	paths := testPaths(t)
	date := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

	writeZip(t, paths.ExchangeArchive("pdbc", date), "pdbc_20240115.1",
		"PDBC;\n"+
			"2024;01;15;1;UPA;10.5;0;C;1;\n"+
			"2024;01;15;2;UPA;4;0;C;1;\n"+
			"2024;01;15;1;OTHER;99;0;C;1;\n"+
			"*\n")
	writeZip(t, paths.ExchangePriceArchive("marginalpdbc", date), "marginalpdbc_20240115.1",
		"MARGINALPDBC;\n"+
			"2024;01;15;1;60.00;50.00;\n"+
			"2024;01;15;2;61.00;52.00;\n"+
			"*\n")

	mkt := &models.MarketDefinition{
		Name:           "PDBC",
		QuantitySource: models.QuantityExchangeAuction,
		QuantityIDs:    []string{"pdbc"},
		PriceSource:    models.PriceExchange,
		Price:          models.PriceID{Literal: "marginalpdbc"},
	}
	if err := mkt.Validate(); err != nil {
		t.Fatalf("market definition invalid: %v", err)
	}

	mp := newTestProcessor(paths, []string{"UPA"})
	records, err := mp.Process(mkt, date)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.Unit != "UPA" || first.Quantity != 10.5 {
		t.Errorf("unexpected first record: %+v", first)
	}
	if first.Price == nil || *first.Price != 50 {
		t.Errorf("expected the Spanish marginal price 50, got %v", first.Price)
	}
	if first.Margin == nil || *first.Margin != 525 {
		t.Errorf("expected margin 525, got %v", first.Margin)
	}
	if first.Local.Hour() != 0 || records[1].Local.Hour() != 1 {
		t.Errorf("period numbers must map onto consecutive hours")
	}
	if _, off := first.Ref.Zone(); off != 3600 {
		t.Errorf("reference timestamps are fixed UTC+1, offset %d", off)
	}
}

func TestProcessOperatorSheetWithIndicatorPrice(t *testing.T) {
	paths := testPaths(t)
	date := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

	writeWorkbookZip(t, paths.OperatorArchive(date), "I90DIA05", [][]interface{}{
		{"", "Reserva de potencia adicional"},
		{"Unidad de Programación", "Sentido", "00-01", "01-02"},
		{"UPA", "Subir", 5.0, 0.0},
		{"UPA", "Bajar", 3.0, 2.0},
		{"OTHER", "Subir", 7.0, 7.0},
	})

	indicatorPath := paths.IndicatorFile("634", date)
	if err := os.MkdirAll(filepath.Dir(indicatorPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	csv := "id,geo_id,datetime,value\n" +
		"634,8741,2024-01-15T00:00:00+01:00,12.5\n" +
		"634,8741,2024-01-15T01:00:00+01:00,14\n" +
		"634,3,2024-01-15T00:00:00+01:00,999\n"
	if err := os.WriteFile(indicatorPath, []byte(csv), 0o644); err != nil {
		t.Fatalf("write indicator: %v", err)
	}

	mkt := &models.MarketDefinition{
		Name:            "Banda Subir",
		QuantitySource:  models.QuantityOperatorSheet,
		QuantityIDs:     []string{"I90DIA05"},
		QuantityFilters: map[string]string{"Sentido": "Subir"},
		PriceSource:     models.PriceIndicator,
		Price:           models.PriceID{Literal: "634"},
	}
	if err := mkt.Validate(); err != nil {
		t.Fatalf("market definition invalid: %v", err)
	}

	mp := newTestProcessor(paths, []string{"UPA"})
	records, err := mp.Process(mkt, date)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	// Zero cells are dropped, the Bajar row is filtered, OTHER is not a
	// target unit: only UPA/Subir at 00-01 remains.
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Unit != "UPA" || rec.Direction != "Subir" || rec.Quantity != 5 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Price == nil || *rec.Price != 12.5 {
		t.Errorf("expected the peninsular indicator value 12.5, got %v", rec.Price)
	}
	if rec.Margin == nil || *rec.Margin != 62.5 {
		t.Errorf("expected margin 62.5, got %v", rec.Margin)
	}
}

func TestProcessCombinedTrades(t *testing.T) {
	paths := testPaths(t)
	date := time.Date(2024, time.August, 14, 0, 0, 0, 0, time.UTC)

	content := "Mercado intradiario continuo\n" +
		"Fecha;Contrato;UnidadV;UnidadC;Precio;Cantidad\n" +
		"14/08/2024;20240814 19:00-20240814 20:00;UPA;XBUY;50,0;10\n" +
		"14/08/2024;20240814 19:00-20240814 20:00;XSELL;UPA;40,0;2\n" +
		"14/08/2024;20240814 21:00-20240814 22:00;XSELL;XBUY;45,0;8\n"
	writeZip(t, paths.ExchangeArchive("trades", date), "trades_20240814.1", content)

	mkt := &models.MarketDefinition{
		Name:           "MIC",
		QuantitySource: models.QuantityExchangeTrades,
		QuantityIDs:    []string{"trades"},
		Combined:       true,
	}
	if err := mkt.Validate(); err != nil {
		t.Fatalf("market definition invalid: %v", err)
	}

	mp := newTestProcessor(paths, []string{"UPA"})
	records, err := mp.Process(mkt, date)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one aggregated record, got %d", len(records))
	}
	rec := records[0]
	// Sell 10 @ 50 and buy 2 @ 40 in the same delivery hour.
	if rec.Quantity != 8 {
		t.Errorf("expected net quantity 8, got %v", rec.Quantity)
	}
	if rec.Margin == nil || *rec.Margin != 420 {
		t.Errorf("expected margin 420 (500 - 80), got %v", rec.Margin)
	}
	if rec.Price == nil || *rec.Price != 52.5 {
		t.Errorf("expected recomputed price 52.5, got %v", rec.Price)
	}
	if rec.Local.Hour() != 19 {
		t.Errorf("delivery start hour expected 19, got %d", rec.Local.Hour())
	}
}

func TestProcessSessionedMarket(t *testing.T) {
	paths := testPaths(t)
	date := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

	writeZipEntries(t, paths.ExchangeArchive("pibci", date), map[string]string{
		"pibci_2024011501.1": "PIBCI;\n2024;01;15;10;1;UPA;6;C;1;\n*\n",
		"pibci_2024011502.1": "PIBCI;\n2024;01;15;10;2;UPA;2;C;1;\n*\n",
	})

	indicators := map[string]string{"612": "20", "613": "30"}
	for id, value := range indicators {
		path := paths.IndicatorFile(id, date)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		csv := "id,geo_id,datetime,value\n" +
			id + ",3,2024-01-15T09:00:00+01:00," + value + "\n"
		if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
			t.Fatalf("write indicator: %v", err)
		}
	}

	mkt := &models.MarketDefinition{
		Name:           "PIBC",
		QuantitySource: models.QuantityExchangeAuction,
		QuantityIDs:    []string{"pibci"},
		PriceSource:    models.PriceIndicator,
		Price:          models.PriceID{Sessions: map[int]string{1: "612", 2: "613"}},
		Sessioned:      true,
	}
	if err := mkt.Validate(); err != nil {
		t.Fatalf("market definition invalid: %v", err)
	}

	mp := newTestProcessor(paths, []string{"UPA"})
	records, err := mp.Process(mkt, date)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected one record per session, got %d", len(records))
	}
	if records[0].Market != "PIBC s01" || records[1].Market != "PIBC s02" {
		t.Errorf("expected session-tagged markets, got %q / %q", records[0].Market, records[1].Market)
	}
	// Period 10 is the 09:00 hour; each session joins its own indicator.
	if records[0].Local.Hour() != 9 {
		t.Errorf("expected delivery at 09:00, got %d", records[0].Local.Hour())
	}
	if records[0].Price == nil || *records[0].Price != 20 {
		t.Errorf("session 1 must use its own indicator, got %v", records[0].Price)
	}
	if records[1].Price == nil || *records[1].Price != 30 {
		t.Errorf("session 2 must use its own indicator, got %v", records[1].Price)
	}
	if records[1].Margin == nil || *records[1].Margin != 60 {
		t.Errorf("expected session 2 margin 60, got %v", records[1].Margin)
	}
}

func TestProcessMissingSourcesYieldNoRows(t *testing.T) {
	paths := testPaths(t)
	date := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

	mkt := &models.MarketDefinition{
		Name:           "PDBF",
		QuantitySource: models.QuantityOperatorSheet,
		QuantityIDs:    []string{"I90DIA26"},
	}
	mp := newTestProcessor(paths, []string{"UPA"})
	records, err := mp.Process(mkt, date)
	if err != nil {
		t.Fatalf("missing sources must not error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}
