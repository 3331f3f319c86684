package processor

import (
	"context"
	"sync"
	"testing"

	appconfig "marginflow/config"
	"marginflow/models"
)

type captureWriter struct {
	mu     sync.Mutex
	months map[string][]models.AggregatedRecord
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{months: make(map[string][]models.AggregatedRecord)}
}

func (w *captureWriter) WriteMonth(_ context.Context, month string, records []models.AggregatedRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.months[month] = append(w.months[month], records...)
	return nil
}

func engineConfig(paths appconfig.PathsConfig, start, end string, workers int) *appconfig.Config {
	return &appconfig.Config{
		Paths: paths,
		Processing: appconfig.ProcessingConfig{
			MaxWorkers:  workers,
			TargetUnits: []string{"UPA"},
			StartDate:   start,
			EndDate:     end,
		},
	}
}

func pdbcMarket() []models.MarketDefinition {
	return []models.MarketDefinition{{
		Name:           "PDBC",
		QuantitySource: models.QuantityExchangeAuction,
		QuantityIDs:    []string{"pdbc"},
		PriceSource:    models.PriceExchange,
		Price:          models.PriceID{Literal: "marginalpdbc"},
	}}
}

func seedTwoDays(t *testing.T, paths appconfig.PathsConfig) {
	t.Helper()
	dates := []struct {
		ymd string
		qty string
	}{
		{"20240131", "7"},
		{"20240201", "3"},
	}
	// Both days share one yearly price archive.
	prices := make(map[string]string)
	for _, d := range dates {
		day := mustDate(t, d.ymd)
		writeZip(t, paths.ExchangeArchive("pdbc", day), "pdbc_"+d.ymd+".1",
			"PDBC;\n2024;1;1;1;UPA;"+d.qty+";0;C;1;\n*\n")
		prices["marginalpdbc_"+d.ymd+".1"] = "MARGINALPDBC;\n2024;1;1;1;60.00;10.00;\n*\n"
	}
	writeZipEntries(t, paths.ExchangePriceArchive("marginalpdbc", mustDate(t, "20240131")), prices)
}

func TestEngineRunSequential(t *testing.T) {
	paths := testPaths(t)
	seedTwoDays(t, paths)

	sink := newCaptureWriter()
	engine := NewEngine(engineConfig(paths, "20240131", "20240201", 1), pdbcMarket(), sink)
	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The two days straddle a month boundary and must land in separate files.
	if len(sink.months) != 2 {
		t.Fatalf("expected 2 months, got %d", len(sink.months))
	}
	jan, feb := sink.months["202401"], sink.months["202402"]
	if len(jan) != 1 || len(feb) != 1 {
		t.Fatalf("expected one record per month, got %d/%d", len(jan), len(feb))
	}
	if jan[0].Quantity != 7 || feb[0].Quantity != 3 {
		t.Errorf("unexpected quantities: %v / %v", jan[0].Quantity, feb[0].Quantity)
	}
	if jan[0].Margin == nil || *jan[0].Margin != 70 {
		t.Errorf("expected margin 70, got %v", jan[0].Margin)
	}
}

func TestEngineRunWorkerPool(t *testing.T) {
	paths := testPaths(t)
	seedTwoDays(t, paths)

	sink := newCaptureWriter()
	engine := NewEngine(engineConfig(paths, "20240131", "20240201", 4), pdbcMarket(), sink)
	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(sink.months["202401"]) != 1 || len(sink.months["202402"]) != 1 {
		t.Fatalf("worker pool must produce the same months as the sequential run")
	}
}

func TestEngineRunNoDateRange(t *testing.T) {
	engine := NewEngine(&appconfig.Config{}, pdbcMarket(), newCaptureWriter())
	if err := engine.Run(context.Background()); err == nil {
		t.Fatalf("expected error for missing date range")
	}
}

func TestEngineRecoversFailingMarket(t *testing.T) {
	paths := testPaths(t)
	seedTwoDays(t, paths)

	// An exchange market whose trade file is missing its columns errors; the
	// healthy market must still produce records.
	markets := append([]models.MarketDefinition{{
		Name:           "MIC",
		QuantitySource: models.QuantityExchangeTrades,
		QuantityIDs:    []string{"trades"},
		Combined:       true,
	}}, pdbcMarket()...)
	day := mustDate(t, "20240131")
	writeZip(t, paths.ExchangeArchive("trades", day), "trades_20240131.1",
		"Fecha;Contrato\n14/08/2024;garbage\n")

	sink := newCaptureWriter()
	engine := NewEngine(engineConfig(paths, "20240131", "20240131", 1), markets, sink)
	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(sink.months["202401"]) != 1 {
		t.Fatalf("healthy market must survive a failing one, got %d records", len(sink.months["202401"]))
	}
}
