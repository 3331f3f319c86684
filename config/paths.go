package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Locator construction for the three source trees. The engine builds locators
// here and hands them to the readers; it never invents layouts ad hoc.

// OperatorArchive returns the system operator's daily workbook archive for a
// date: <operator_dir>/i90_<year>/I90DIA_<yyyymmdd>.zip.
func (p PathsConfig) OperatorArchive(date time.Time) string {
	name := fmt.Sprintf("I90DIA_%s.zip", date.Format("20060102"))
	return filepath.Join(p.OperatorDir, fmt.Sprintf("i90_%d", date.Year()), name)
}

// IndicatorFile returns the monthly indicator CSV for an indicator id:
// <indicator_dir>/<id>/<id>_<year>_<month>.csv. The month is not zero padded.
func (p PathsConfig) IndicatorFile(id string, date time.Time) string {
	name := fmt.Sprintf("%s_%d_%d.csv", id, date.Year(), int(date.Month()))
	return filepath.Join(p.IndicatorDir, id, name)
}

// ExchangeArchive returns the monthly flat-file archive of a series:
// <exchange_dir>/<series>/<series>_<yyyymm>.zip.
func (p PathsConfig) ExchangeArchive(series string, date time.Time) string {
	name := fmt.Sprintf("%s_%s.zip", series, date.Format("200601"))
	return filepath.Join(p.ExchangeDir, series, name)
}

// ExchangePriceArchive returns the yearly archive used for exchange price
// series: <exchange_dir>/<series>/<series>_<yyyy>.zip.
func (p PathsConfig) ExchangePriceArchive(series string, date time.Time) string {
	name := fmt.Sprintf("%s_%d.zip", series, date.Year())
	return filepath.Join(p.ExchangeDir, series, name)
}

// DailyPrefix returns the inner-file prefix addressing one day of a series
// inside its archive.
func DailyPrefix(series string, date time.Time) string {
	return fmt.Sprintf("%s_%s", series, date.Format("20060102"))
}

// SessionPrefix returns the inner-file prefix of one intraday session file.
func SessionPrefix(series string, date time.Time, session int) string {
	return fmt.Sprintf("%s_%s%02d", series, date.Format("20060102"), session)
}
