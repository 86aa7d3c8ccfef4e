package writer

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"tradersentiment/models"
)

// TradeRecord is the columnar layout of a trade source. Column names match
// the reader's candidate lists.
type TradeRecord struct {
	Account   string   `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Timestamp *int64   `parquet:"name=timestamp, type=INT64, repetitiontype=OPTIONAL"`
	ClosedPnL *float64 `parquet:"name=closedpnl, type=DOUBLE, repetitiontype=OPTIONAL"`
	SizeUSD   *float64 `parquet:"name=size_usd, type=DOUBLE, repetitiontype=OPTIONAL"`
	Size      *float64 `parquet:"name=size, type=DOUBLE, repetitiontype=OPTIONAL"`
	Side      *string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Leverage  *float64 `parquet:"name=leverage, type=DOUBLE, repetitiontype=OPTIONAL"`
	Fee       *float64 `parquet:"name=fee, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// RecordFromTrade converts a normalized trade into its columnar form.
func RecordFromTrade(t models.Trade) TradeRecord {
	rec := TradeRecord{
		Account:   t.Account,
		ClosedPnL: t.PnL,
		SizeUSD:   t.SizeUSD,
		Size:      t.Size,
		Leverage:  t.Leverage,
		Fee:       t.Fee,
	}
	if t.Time != nil {
		ms := t.Time.UnixMilli()
		rec.Timestamp = &ms
	}
	if t.Side != "" {
		side := t.Side
		rec.Side = &side
	}
	return rec
}

// memoryFileWriter implements ParquetFile interface for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{
		buffer: &bytes.Buffer{},
	}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

// Seek reports the write position; the parquet writer only appends.
func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// TradeWriter appends trade records to one parquet file.
type TradeWriter struct {
	pw   *writer.ParquetWriter
	fw   source.ParquetFile
	mu   sync.Mutex
	rows int
}

func newTradeWriter(fw source.ParquetFile) (*TradeWriter, error) {
	pw, err := writer.NewParquetWriter(fw, new(TradeRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	return &TradeWriter{pw: pw, fw: fw}, nil
}

// NewTradeFileWriter creates a parquet trade file at path.
func NewTradeFileWriter(path string) (*TradeWriter, error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	w, err := newTradeWriter(fw)
	if err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *TradeWriter) Write(rec TradeRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.pw.Write(rec); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows returns the number of records written so far.
func (w *TradeWriter) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

func (w *TradeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.pw.WriteStop(); err != nil {
		return err
	}
	return w.fw.Close()
}

// WriteTradesParquet writes trades to a local parquet file.
func WriteTradesParquet(path string, trades []models.Trade) error {
	w, err := NewTradeFileWriter(path)
	if err != nil {
		return err
	}
	for _, t := range trades {
		if err := w.Write(RecordFromTrade(t)); err != nil {
			w.Close()
			return fmt.Errorf("write trade: %w", err)
		}
	}
	return w.Close()
}

// EncodeTradesParquet returns trades as parquet bytes.
func EncodeTradesParquet(trades []models.Trade) ([]byte, error) {
	mfw := newMemoryFileWriter()
	w, err := newTradeWriter(mfw)
	if err != nil {
		return nil, err
	}
	for _, t := range trades {
		if err := w.Write(RecordFromTrade(t)); err != nil {
			return nil, fmt.Errorf("write trade: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return mfw.Bytes(), nil
}
