package processor

import (
	"testing"
	"time"

	"marginflow/models"
)

func ruleMarket() *models.MarketDefinition {
	return &models.MarketDefinition{
		Name:           "mFRR Subir",
		QuantitySource: models.QuantityOperatorSheet,
		QuantityIDs:    []string{"I90DIA07"},
		PriceSource:    models.PriceIndicator,
		Price: models.PriceID{Rules: []models.PriceRule{
			{Cutoff: time.Date(2024, time.December, 10, 0, 0, 0, 0, time.UTC), ID: "677"},
			{ID: "2197"},
		}},
	}
}

func TestResolvePriceIDRules(t *testing.T) {
	mkt := ruleMarket()
	cases := []struct {
		day  time.Time
		want string
	}{
		{time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), "677"},
		// The cutoff day itself still uses the earlier identifier.
		{time.Date(2024, time.December, 10, 0, 0, 0, 0, time.UTC), "677"},
		{time.Date(2024, time.December, 11, 0, 0, 0, 0, time.UTC), "2197"},
		{time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), "2197"},
	}
	for _, c := range cases {
		got, err := ResolvePriceID(mkt, c.day, 0)
		if err != nil {
			t.Fatalf("ResolvePriceID(%s) failed: %v", c.day.Format("20060102"), err)
		}
		if got != c.want {
			t.Errorf("%s: expected %s, got %s", c.day.Format("20060102"), c.want, got)
		}
	}
}

func TestResolvePriceIDLiteral(t *testing.T) {
	mkt := &models.MarketDefinition{
		Name:  "Banda Bajar",
		Price: models.PriceID{Literal: "634"},
	}
	got, err := ResolvePriceID(mkt, time.Now(), 0)
	if err != nil {
		t.Fatalf("ResolvePriceID failed: %v", err)
	}
	if got != "634" {
		t.Errorf("expected 634, got %s", got)
	}
}

func TestResolvePriceIDSessions(t *testing.T) {
	mkt := &models.MarketDefinition{
		Name:      "PIBC",
		Sessioned: true,
		Price:     models.PriceID{Sessions: map[int]string{1: "612", 2: "613"}},
	}
	got, err := ResolvePriceID(mkt, time.Now(), 2)
	if err != nil {
		t.Fatalf("ResolvePriceID failed: %v", err)
	}
	if got != "613" {
		t.Errorf("expected 613, got %s", got)
	}
	if _, err := ResolvePriceID(mkt, time.Now(), 9); err == nil {
		t.Errorf("expected error for unknown session")
	}
}
