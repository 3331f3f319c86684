package reader

import (
	"github.com/xuri/excelize/v2"

	"marginflow/models"
)

type sheetKey struct {
	zipPath string
	sheet   string
}

type flatKey struct {
	zipPath string
	prefix  string
}

// Cache is the per-day read-through file cache. Every table is parsed at most
// once per day; hits hand out clones so one market's extraction can never
// mutate a table another market still has to read. A Cache belongs to exactly
// one worker and is not safe for concurrent use — dates are independent units
// of work, so workers never share one.
type Cache struct {
	workbooks map[string]*excelize.File
	sheets    map[sheetKey]*models.Frame
	indicator map[string]*models.Frame
	flats     map[flatKey]*models.Frame
}

func NewCache() *Cache {
	c := &Cache{}
	c.Clear()
	return c
}

// Clear drops every cached table and closes cached workbooks. Sequential runs
// call this at the start of every new date.
func (c *Cache) Clear() {
	for _, wb := range c.workbooks {
		if wb != nil {
			wb.Close()
		}
	}
	c.workbooks = make(map[string]*excelize.File)
	c.sheets = make(map[sheetKey]*models.Frame)
	c.indicator = make(map[string]*models.Frame)
	c.flats = make(map[flatKey]*models.Frame)
}

// OperatorSheet returns one sheet of a daily operator workbook. The workbook
// itself is parsed once and kept, so addressing several sheets of the same
// archive does not re-read the zip.
func (c *Cache) OperatorSheet(zipPath, sheet string) (*models.Frame, error) {
	key := sheetKey{zipPath, sheet}
	if f, ok := c.sheets[key]; ok {
		return f.Clone(), nil
	}

	wb, ok := c.workbooks[zipPath]
	if !ok {
		var err error
		wb, err = openWorkbook(zipPath)
		if err != nil {
			return nil, err
		}
		c.workbooks[zipPath] = wb
	}

	f := sheetFrame(wb, sheet)
	c.sheets[key] = f
	return f.Clone(), nil
}

// Indicator returns a monthly indicator table.
func (c *Cache) Indicator(path string) (*models.Frame, error) {
	if f, ok := c.indicator[path]; ok {
		return f.Clone(), nil
	}
	f, err := ReadIndicatorFile(path)
	if err != nil {
		return nil, err
	}
	c.indicator[path] = f
	return f.Clone(), nil
}

// ExchangeFile returns one day (or session) of an exchange series.
func (c *Cache) ExchangeFile(zipPath, prefix string) (*models.Frame, error) {
	key := flatKey{zipPath, prefix}
	if f, ok := c.flats[key]; ok {
		return f.Clone(), nil
	}
	f, err := ReadExchangeFile(zipPath, prefix)
	if err != nil {
		return nil, err
	}
	c.flats[key] = f
	return f.Clone(), nil
}
