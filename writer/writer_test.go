package writer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"tradersentiment/models"
)

func sampleTrades() []models.Trade {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []models.Trade{
		{Account: "A", Time: &ts, PnL: models.Float(10.5), SizeUSD: models.Float(100), Side: "BUY"},
		{Account: "B", PnL: nil, Size: models.Float(2), Leverage: models.Float(3)},
	}
}

func TestRecordFromTrade(t *testing.T) {
	trades := sampleTrades()
	rec := RecordFromTrade(trades[0])
	if rec.Timestamp == nil || *rec.Timestamp != trades[0].Time.UnixMilli() {
		t.Fatalf("unexpected timestamp: %v", rec.Timestamp)
	}
	if rec.Side == nil || *rec.Side != "BUY" {
		t.Fatalf("unexpected side: %v", rec.Side)
	}

	rec = RecordFromTrade(trades[1])
	if rec.Timestamp != nil || rec.Side != nil || rec.ClosedPnL != nil {
		t.Fatalf("null fields should stay nil: %+v", rec)
	}
}

func TestWriteTradesParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.parquet")
	if err := WriteTradesParquet(path, sampleTrades()); err != nil {
		t.Fatalf("WriteTradesParquet: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) < 8 || string(data[:4]) != "PAR1" || string(data[len(data)-4:]) != "PAR1" {
		t.Fatalf("output is not a parquet file")
	}
}

func TestEncodeTradesParquet(t *testing.T) {
	data, err := EncodeTradesParquet(sampleTrades())
	if err != nil {
		t.Fatalf("EncodeTradesParquet: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("PAR1")) || !bytes.HasSuffix(data, []byte("PAR1")) {
		t.Fatalf("output is not a parquet file")
	}
}

func TestWritePanelXLSX(t *testing.T) {
	greed := models.Greed
	panel := &models.Panel{
		Columns: models.MetricColumns{Account: true, Date: true, PnL: true, Sentiment: true},
		Rows: []models.PanelRow{
			{
				DailyAggregate: models.DailyAggregate{Account: "A", Date: "2024-03-01", Trades: 2, TotalPnL: models.Float(5)},
				Classification: &greed,
				SentimentScore: models.Int(3),
			},
			{
				DailyAggregate: models.DailyAggregate{Account: "B", Date: "2024-03-02", Trades: 1},
			},
		},
	}

	var buf bytes.Buffer
	if err := WritePanelXLSX(&buf, panel); err != nil {
		t.Fatalf("WritePanelXLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(PanelSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "account" || rows[0][len(rows[0])-1] != "sentiment_score" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][0] != "A" || rows[1][2] != "2" {
		t.Errorf("unexpected first row: %v", rows[1])
	}
	if len(rows[0]) != len(panel.ColumnNames()) {
		t.Errorf("header has %d cells, want %d", len(rows[0]), len(panel.ColumnNames()))
	}
}
