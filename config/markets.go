package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"marginflow/models"
)

// marketSpec is the yaml-facing shape of one market definition. It is
// loosely typed on purpose; Markets() resolves specs into validated
// models.MarketDefinition values once, at load time.
type marketSpec struct {
	Name            string            `yaml:"name"`
	QuantitySource  string            `yaml:"quantity_source"`
	QuantityIDs     []string          `yaml:"quantity_ids"`
	QuantityFilters map[string]string `yaml:"quantity_filters"`
	PriceSource     string            `yaml:"price_source"`
	PriceID         string            `yaml:"price_id"`
	PriceRules      []priceRuleSpec   `yaml:"price_rules"`
	PriceSessions   map[int]string    `yaml:"price_sessions"`
	PriceFilters    map[string]string `yaml:"price_filters"`
	Combined        bool              `yaml:"combined"`
	Sessioned       bool              `yaml:"sessioned"`
}

type priceRuleSpec struct {
	Until string `yaml:"until"` // YYYY-MM-DD, empty on the open-ended tail rule
	ID    string `yaml:"id"`
}

type marketsFile struct {
	Markets []marketSpec `yaml:"markets"`
}

// Markets returns the market definitions for this run: the catalogue from
// paths.markets_file when set, otherwise the built-in one, reduced to the
// processing.markets subset when that is non-empty.
func (c *Config) Markets() ([]models.MarketDefinition, error) {
	defs := DefaultMarkets()
	if c.Paths.MarketsFile != "" {
		loaded, err := LoadMarkets(c.Paths.MarketsFile)
		if err != nil {
			return nil, err
		}
		defs = loaded
	}
	if len(c.Processing.Markets) == 0 {
		return defs, nil
	}
	want := make(map[string]bool, len(c.Processing.Markets))
	for _, name := range c.Processing.Markets {
		want[name] = true
	}
	var subset []models.MarketDefinition
	for _, d := range defs {
		if want[d.Name] {
			subset = append(subset, d)
			delete(want, d.Name)
		}
	}
	for name := range want {
		return nil, fmt.Errorf("processing.markets references unknown market %q", name)
	}
	if len(subset) == 0 {
		return nil, fmt.Errorf("no target markets selected")
	}
	return subset, nil
}

// LoadMarkets reads a market definition file and resolves it into validated
// definitions.
func LoadMarkets(path string) ([]models.MarketDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read markets file: %w", err)
	}
	var mf marketsFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("failed to parse markets file: %w", err)
	}
	if len(mf.Markets) == 0 {
		return nil, fmt.Errorf("markets file %s defines no markets", path)
	}
	defs := make([]models.MarketDefinition, 0, len(mf.Markets))
	for _, spec := range mf.Markets {
		def, err := spec.resolve()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (s marketSpec) resolve() (models.MarketDefinition, error) {
	def := models.MarketDefinition{
		Name:            s.Name,
		QuantitySource:  models.QuantitySourceKind(s.QuantitySource),
		QuantityIDs:     s.QuantityIDs,
		QuantityFilters: s.QuantityFilters,
		PriceSource:     models.PriceSourceKind(s.PriceSource),
		PriceFilters:    s.PriceFilters,
		Combined:        s.Combined,
		Sessioned:       s.Sessioned,
	}
	if def.PriceSource == "" {
		def.PriceSource = models.PriceNone
	}
	def.Price.Literal = s.PriceID
	def.Price.Sessions = s.PriceSessions
	for i, r := range s.PriceRules {
		rule := models.PriceRule{ID: r.ID}
		if r.Until != "" {
			cutoff, err := time.Parse("2006-01-02", r.Until)
			if err != nil {
				return def, fmt.Errorf("market %s: price rule %d has invalid cutoff %q: %w", s.Name, i, r.Until, err)
			}
			rule.Cutoff = cutoff
		}
		def.Price.Rules = append(def.Price.Rules, rule)
	}
	if err := def.Validate(); err != nil {
		return def, err
	}
	return def, nil
}

func ruleDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DefaultMarkets is the built-in catalogue of Spanish electricity markets.
// Sheet identifiers address the system operator's daily workbook; series
// prefixes address the exchange flat-file archives; numeric price ids address
// indicator files.
func DefaultMarkets() []models.MarketDefinition {
	return []models.MarketDefinition{
		{
			Name:           "Bilaterales",
			QuantitySource: models.QuantityOperatorSheet,
			QuantityIDs:    []string{"I90DIA27"},
			PriceSource:    models.PriceNone,
		},
		{
			Name:           "PDBC",
			QuantitySource: models.QuantityExchangeAuction,
			QuantityIDs:    []string{"pdbc"},
			PriceSource:    models.PriceExchange,
			Price:          models.PriceID{Literal: "marginalpdbc"},
		},
		{
			Name:           "PDBF",
			QuantitySource: models.QuantityOperatorSheet,
			QuantityIDs:    []string{"I90DIA26"},
			PriceSource:    models.PriceNone,
		},
		{
			Name:            "Restricciones tecnicas Subir",
			QuantitySource:  models.QuantityOperatorSheet,
			QuantityIDs:     []string{"I90DIA03"},
			QuantityFilters: map[string]string{"Sentido": "Subir"},
			PriceSource:     models.PriceOperatorSheet,
			Price:           models.PriceID{Literal: "I90DIA09"},
			PriceFilters:    map[string]string{"Sentido": "Subir"},
		},
		{
			Name:            "Restricciones tecnicas Bajar",
			QuantitySource:  models.QuantityOperatorSheet,
			QuantityIDs:     []string{"I90DIA03"},
			QuantityFilters: map[string]string{"Sentido": "Bajar"},
			PriceSource:     models.PriceOperatorSheet,
			Price:           models.PriceID{Literal: "I90DIA09"},
			PriceFilters:    map[string]string{"Sentido": "Bajar"},
		},
		{
			Name:           "PDVP",
			QuantitySource: models.QuantityOperatorSheet,
			QuantityIDs:    []string{"I90DIA01"},
			PriceSource:    models.PriceNone,
		},
		{
			Name:           "PDVD",
			QuantitySource: models.QuantityExchangeAuction,
			QuantityIDs:    []string{"pdvd"},
			PriceSource:    models.PriceNone,
		},
		{
			Name:           "PIBC",
			QuantitySource: models.QuantityExchangeAuction,
			QuantityIDs:    []string{"pibci"},
			PriceSource:    models.PriceIndicator,
			Price: models.PriceID{Sessions: map[int]string{
				1: "612", 2: "613", 3: "614", 4: "615", 5: "616", 6: "617", 7: "618",
			}},
			Sessioned: true,
		},
		{
			Name:           "MIC",
			QuantitySource: models.QuantityExchangeTrades,
			QuantityIDs:    []string{"trades"},
			PriceSource:    models.PriceNone,
			Combined:       true,
		},
		{
			Name:            "Banda Subir",
			QuantitySource:  models.QuantityOperatorSheet,
			QuantityIDs:     []string{"I90DIA05"},
			QuantityFilters: map[string]string{"Sentido": "Subir"},
			PriceSource:     models.PriceIndicator,
			Price: models.PriceID{Rules: []models.PriceRule{
				{Cutoff: ruleDate(2024, time.November, 20), ID: "634"},
				{ID: "2130"},
			}},
		},
		{
			Name:            "Banda Bajar",
			QuantitySource:  models.QuantityOperatorSheet,
			QuantityIDs:     []string{"I90DIA05"},
			QuantityFilters: map[string]string{"Sentido": "Bajar"},
			PriceSource:     models.PriceIndicator,
			Price:           models.PriceID{Literal: "634"},
		},
		{
			Name:            "aFRR Subir",
			QuantitySource:  models.QuantityOperatorSheet,
			QuantityIDs:     []string{"I90DIA37"},
			QuantityFilters: map[string]string{"Sentido": "Subir"},
			PriceSource:     models.PriceIndicator,
			Price:           models.PriceID{Literal: "682"},
		},
		{
			Name:            "aFRR Bajar",
			QuantitySource:  models.QuantityOperatorSheet,
			QuantityIDs:     []string{"I90DIA37"},
			QuantityFilters: map[string]string{"Sentido": "Bajar"},
			PriceSource:     models.PriceIndicator,
			Price:           models.PriceID{Literal: "683"},
		},
		{
			Name:            "mFRR Subir",
			QuantitySource:  models.QuantityOperatorSheet,
			QuantityIDs:     []string{"I90DIA07"},
			QuantityFilters: map[string]string{"Sentido": "Subir"},
			PriceSource:     models.PriceIndicator,
			Price: models.PriceID{Rules: []models.PriceRule{
				{Cutoff: ruleDate(2024, time.December, 10), ID: "677"},
				{ID: "2197"},
			}},
		},
		{
			Name:            "mFRR Bajar",
			QuantitySource:  models.QuantityOperatorSheet,
			QuantityIDs:     []string{"I90DIA07"},
			QuantityFilters: map[string]string{"Sentido": "Bajar"},
			PriceSource:     models.PriceIndicator,
			Price: models.PriceID{Rules: []models.PriceRule{
				{Cutoff: ruleDate(2024, time.December, 10), ID: "676"},
				{ID: "2197"},
			}},
		},
		{
			Name:            "RR Subir",
			QuantitySource:  models.QuantityOperatorSheet,
			QuantityIDs:     []string{"I90DIA06"},
			QuantityFilters: map[string]string{"Sentido": "Subir", "Redespacho": "RR"},
			PriceSource:     models.PriceOperatorSheet,
			Price:           models.PriceID{Literal: "I90DIA11"},
			PriceFilters:    map[string]string{"Sentido": "Subir", "Tipo": "RR"},
		},
		{
			Name:            "RR Bajar",
			QuantitySource:  models.QuantityOperatorSheet,
			QuantityIDs:     []string{"I90DIA06"},
			QuantityFilters: map[string]string{"Sentido": "Bajar", "Redespacho": "RR"},
			PriceSource:     models.PriceOperatorSheet,
			Price:           models.PriceID{Literal: "I90DIA11"},
			PriceFilters:    map[string]string{"Sentido": "Bajar", "Tipo": "RR"},
		},
		{
			Name:            "Restricciones TR Subir",
			QuantitySource:  models.QuantityOperatorSheet,
			QuantityIDs:     []string{"I90DIA08"},
			QuantityFilters: map[string]string{"Sentido": "Subir", "Redespacho": "Restricciones Técnicas"},
			PriceSource:     models.PriceOperatorSheet,
			Price:           models.PriceID{Literal: "I90DIA10"},
			PriceFilters:    map[string]string{"Sentido": "Subir", "Redespacho": "Restricciones Técnicas"},
		},
		{
			Name:            "Restricciones TR Bajar",
			QuantitySource:  models.QuantityOperatorSheet,
			QuantityIDs:     []string{"I90DIA08"},
			QuantityFilters: map[string]string{"Sentido": "Bajar", "Redespacho": "Restricciones Técnicas"},
			PriceSource:     models.PriceOperatorSheet,
			Price:           models.PriceID{Literal: "I90DIA10"},
			PriceFilters:    map[string]string{"Sentido": "Bajar", "Redespacho": "Restricciones Técnicas"},
		},
		{
			Name:           "P48",
			QuantitySource: models.QuantityOperatorSheet,
			QuantityIDs:    []string{"I90DIA02"},
			PriceSource:    models.PriceNone,
		},
	}
}
