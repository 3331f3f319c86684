package writer

import (
	"bytes"
	"os"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"marginflow/models"
)

// marginRecord defines the parquet schema of the monthly output. Price and
// margin are optional fields so priceless markets round-trip as nulls.
type marginRecord struct {
	Unit           string   `parquet:"name=unit, type=BYTE_ARRAY, convertedtype=UTF8"`
	DatetimeMadrid int64    `parquet:"name=datetime_madrid, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	DatetimeUTC1   int64    `parquet:"name=datetime_utc1, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Direction      string   `parquet:"name=direction, type=BYTE_ARRAY, convertedtype=UTF8"`
	Quantity       float64  `parquet:"name=quantity, type=DOUBLE"`
	Price          *float64 `parquet:"name=price, type=DOUBLE, repetitiontype=OPTIONAL"`
	Margin         *float64 `parquet:"name=margin, type=DOUBLE, repetitiontype=OPTIONAL"`
	Market         string   `parquet:"name=market, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type memFileWriter struct{ buffer *bytes.Buffer }

func newMemFileWriter() *memFileWriter { return &memFileWriter{buffer: &bytes.Buffer{}} }

func (m *memFileWriter) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFileWriter) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFileWriter) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFileWriter) Read([]byte) (int, error)                  { return 0, nil }
func (m *memFileWriter) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFileWriter) Close() error                              { return nil }
func (m *memFileWriter) Bytes() []byte                             { return m.buffer.Bytes() }

func compressionCodec(name string) parquet.CompressionCodec {
	switch strings.ToLower(name) {
	case "gzip":
		return parquet.CompressionCodec_GZIP
	case "none", "uncompressed":
		return parquet.CompressionCodec_UNCOMPRESSED
	default:
		return parquet.CompressionCodec_SNAPPY
	}
}

func writeParquet(path, compression string, records []models.AggregatedRecord) (int64, error) {
	mw := newMemFileWriter()
	pw, err := writer.NewParquetWriter(mw, new(marginRecord), 4)
	if err != nil {
		return 0, err
	}
	pw.CompressionType = compressionCodec(compression)
	for _, r := range records {
		rec := marginRecord{
			Unit:           r.Unit,
			DatetimeMadrid: r.Local.UnixNano() / int64(time.Millisecond),
			DatetimeUTC1:   r.Ref.UnixNano() / int64(time.Millisecond),
			Direction:      r.Direction,
			Quantity:       r.Quantity,
			Price:          r.Price,
			Margin:         r.Margin,
			Market:         r.Market,
		}
		if err := pw.Write(rec); err != nil {
			return 0, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return 0, err
	}
	data := mw.Bytes()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}
