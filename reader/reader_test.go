package reader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/types"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "tradersentiment/config"
	"tradersentiment/models"
	"tradersentiment/writer"
)

func TestParseTradeTableCSV(t *testing.T) {
	data := "\ufeffAccount, Timestamp ,Closed PnL,Size USD,Size Tokens,SIDE,Leverage\n" +
		"0xA,1709294400000,10.5,100,1,BUY,2\n" +
		"0xA,1709298000000,,50,0.5,sell,\n" +
		"0xB,1709380800000,oops,nan,2,Buy,3\n"

	table, err := ParseTradeTable([]byte(data), "trades.csv")
	if err != nil {
		t.Fatalf("ParseTradeTable: %v", err)
	}
	if table.Format != FormatCSV {
		t.Fatalf("format = %s, want csv", table.Format)
	}
	s := table.Schema
	if !s.Account.Present || s.Account.Name != "account" {
		t.Errorf("account column: %+v", s.Account)
	}
	if s.PnL.Name != "closed pnl" || s.SizeUSD.Name != "size usd" || s.Size.Name != "size tokens" {
		t.Errorf("unexpected schema: %+v", s)
	}
	if s.Fee.Present {
		t.Errorf("fee column should be absent")
	}
	if s.VolumeKind() != models.VolumeUSD {
		t.Errorf("volume kind = %s", s.VolumeKind())
	}
	if len(table.Trades) != 3 {
		t.Fatalf("got %d trades", len(table.Trades))
	}

	first := table.Trades[0]
	if first.Date != "2024-03-01" || first.PnL == nil || *first.PnL != 10.5 {
		t.Errorf("unexpected first trade: %+v", first)
	}
	if table.Trades[1].PnL != nil || table.Trades[1].Leverage != nil {
		t.Errorf("empty cells should be nil: %+v", table.Trades[1])
	}
	third := table.Trades[2]
	if third.PnL != nil || third.SizeUSD != nil {
		t.Errorf("invalid cells should be nil: %+v", third)
	}
	if third.Date != "2024-03-02" || third.Side != "Buy" {
		t.Errorf("unexpected third trade: %+v", third)
	}
}

func TestCandidatePriority(t *testing.T) {
	data := "trader,pnl,closed pnl,ts\nX,1,2,1709294400000\n"
	table, err := ParseTradeTable([]byte(data), "t.csv")
	if err != nil {
		t.Fatalf("ParseTradeTable: %v", err)
	}
	if table.Schema.PnL.Name != "closed pnl" {
		t.Fatalf("pnl column = %q, want closed pnl", table.Schema.PnL.Name)
	}
	if *table.Trades[0].PnL != 2 || table.Trades[0].Account != "X" {
		t.Fatalf("unexpected trade: %+v", table.Trades[0])
	}
}

func TestTimestampFallback(t *testing.T) {
	cases := []struct {
		name   string
		values []string
		want   []models.Date
		failed int
	}{
		{"epoch millis", []string{"1709294400000", "1709380800000.0", ""}, []models.Date{"2024-03-01", "2024-03-02", ""}, 0},
		{"text", []string{"2024-03-01 10:00:00", "03/02/2024", "garbage"}, []models.Date{"2024-03-01", "2024-03-02", ""}, 1},
		{"mixed column reparsed", []string{"1709294400000", "2024-03-05"}, []models.Date{"2024-03-01", "2024-03-05"}, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, failed := parseTimestamps(c.values)
			if failed != c.failed {
				t.Errorf("failed = %d, want %d", failed, c.failed)
			}
			for i, ts := range got {
				var d models.Date
				if ts != nil {
					d = models.DateOf(*ts)
				}
				if d != c.want[i] {
					t.Errorf("value %d: got %q, want %q", i, d, c.want[i])
				}
			}
		})
	}
}

func TestParseTradeTableParquetFallback(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	precise := 0.1 + 0.2
	trades := []models.Trade{
		{Account: "0xA", Time: &ts, PnL: &precise, SizeUSD: models.Float(250), Side: "BUY", Fee: models.Float(0.01)},
		{Account: "0xB", Time: &ts, PnL: nil, SizeUSD: models.Float(10), Side: "SELL"},
	}
	data, err := writer.EncodeTradesParquet(trades)
	if err != nil {
		t.Fatalf("EncodeTradesParquet: %v", err)
	}

	table, err := ParseTradeTable(data, "trades.parquet")
	if err != nil {
		t.Fatalf("ParseTradeTable: %v", err)
	}
	if table.Format != FormatParquet {
		t.Fatalf("format = %s, want parquet", table.Format)
	}
	if len(table.Trades) != 2 {
		t.Fatalf("got %d trades", len(table.Trades))
	}
	got := table.Trades[0]
	if got.PnL == nil || *got.PnL != precise {
		t.Errorf("pnl lost precision: %v", got.PnL)
	}
	if got.Date != "2024-03-01" || got.Account != "0xA" || got.Side != "BUY" {
		t.Errorf("unexpected trade: %+v", got)
	}
	if table.Trades[1].PnL != nil {
		t.Errorf("null pnl should stay nil")
	}
	if table.Schema.PnL.Name != "closedpnl" || table.Schema.VolumeKind() != models.VolumeUSD {
		t.Errorf("unexpected schema: %+v", table.Schema)
	}
}

// writeParquetFile encodes rows with schema's struct tags and returns the
// file bytes.
func writeParquetFile(t *testing.T, schema interface{}, rows ...interface{}) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.parquet")
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		t.Fatalf("create parquet file: %v", err)
	}
	pw, err := pqwriter.NewParquetWriter(fw, schema, 1)
	if err != nil {
		t.Fatalf("NewParquetWriter: %v", err)
	}
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		t.Fatalf("WriteStop: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	return data
}

type exportedTrade struct {
	Account   string   `parquet:"name=Account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64    `parquet:"name=Timestamp, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	ClosedPnL *float64 `parquet:"name=Closed PnL, type=DOUBLE, repetitiontype=OPTIONAL"`
	SizeUSD   float64  `parquet:"name=Size USD, type=DOUBLE"`
	Side      string   `parquet:"name=Side, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func TestParseTradeTableParquetOriginalNames(t *testing.T) {
	pnl := 12.5
	noon := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).UnixMicro()
	data := writeParquetFile(t, new(exportedTrade),
		exportedTrade{Account: "0xA", Timestamp: noon, ClosedPnL: &pnl, SizeUSD: 400, Side: "BUY"},
		exportedTrade{Account: "0xB", Timestamp: noon + 86400*1e6, SizeUSD: 50, Side: "SELL"},
	)

	table, err := ParseTradeTable(data, "export.parquet")
	if err != nil {
		t.Fatalf("ParseTradeTable: %v", err)
	}
	if !table.Schema.PnL.Present || table.Schema.PnL.Name != "closed pnl" {
		t.Fatalf("pnl column not resolved: %+v", table.Schema.PnL)
	}
	if table.Schema.VolumeKind() != models.VolumeUSD {
		t.Fatalf("volume kind = %v, want usd", table.Schema.VolumeKind())
	}
	if len(table.Trades) != 2 {
		t.Fatalf("got %d trades", len(table.Trades))
	}

	first := table.Trades[0]
	if first.PnL == nil || *first.PnL != pnl {
		t.Errorf("pnl = %v, want %v", first.PnL, pnl)
	}
	if first.SizeUSD == nil || *first.SizeUSD != 400 {
		t.Errorf("size usd = %v, want 400", first.SizeUSD)
	}
	if first.Date != "2024-03-01" || table.Trades[1].Date != "2024-03-02" {
		t.Errorf("dates = %q, %q", first.Date, table.Trades[1].Date)
	}
	if table.Trades[1].PnL != nil {
		t.Errorf("null pnl should stay nil")
	}
}

type int96Trade struct {
	Account string  `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Time    string  `parquet:"name=time, type=INT96"`
	PnL     float64 `parquet:"name=pnl, type=DOUBLE"`
}

type nanosTrade struct {
	Account string  `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	TS      int64   `parquet:"name=ts, type=INT64, logicaltype=TIMESTAMP, logicaltype.isadjustedtoutc=true, logicaltype.unit=NANOS"`
	PnL     float64 `parquet:"name=pnl, type=DOUBLE"`
}

func TestParseTradeTableParquetTimestampTypes(t *testing.T) {
	late := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)

	cases := []struct {
		name string
		data []byte
	}{
		{"int96", writeParquetFile(t, new(int96Trade),
			int96Trade{Account: "0xA", Time: types.TimeToINT96(late), PnL: 1})},
		{"logical nanos", writeParquetFile(t, new(nanosTrade),
			nanosTrade{Account: "0xA", TS: late.UnixNano(), PnL: 1})},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			table, err := ParseTradeTable(c.data, "trades.parquet")
			if err != nil {
				t.Fatalf("ParseTradeTable: %v", err)
			}
			if len(table.Trades) != 1 {
				t.Fatalf("got %d trades", len(table.Trades))
			}
			got := table.Trades[0]
			if got.Date != "2024-03-01" {
				t.Errorf("date = %q, want 2024-03-01", got.Date)
			}
			if got.Time == nil || !got.Time.Equal(late) {
				t.Errorf("time = %v, want %v", got.Time, late)
			}
		})
	}
}

func TestParseTradeTableShortRows(t *testing.T) {
	data := "account,timestamp,closed pnl,size usd,side\n" +
		"0xA,1709294400000,5,100,BUY\n" +
		"0xB,1709294400000,-2\n"

	table, err := ParseTradeTable([]byte(data), "trades.csv")
	if err != nil {
		t.Fatalf("ParseTradeTable: %v", err)
	}
	if len(table.Trades) != 2 {
		t.Fatalf("got %d trades", len(table.Trades))
	}
	short := table.Trades[1]
	if short.PnL == nil || *short.PnL != -2 {
		t.Errorf("pnl = %v, want -2", short.PnL)
	}
	if short.SizeUSD != nil || short.Side != "" {
		t.Errorf("missing cells should be null: %+v", short)
	}
}

func TestParseTradeTableFormatError(t *testing.T) {
	cases := map[string][]byte{
		"binary": {0x00, 0x01, 0x02, 0xff, 0xfe},
		"empty":  {},
		"ragged": []byte("a,b\n1,2,3\n"),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTradeTable(data, name)
			if !errors.Is(err, models.ErrFormat) {
				t.Fatalf("expected format error, got %v", err)
			}
			var fe *models.FormatError
			if !errors.As(err, &fe) || fe.TextErr == nil || fe.ColumnsErr == nil {
				t.Fatalf("format error should carry both causes: %v", err)
			}
		})
	}
}

func TestParseSentimentTable(t *testing.T) {
	data := "timestamp,value,Classification,Date\n" +
		"1,10, Extreme  Fear ,2024-03-01\n" +
		"2,80,greed,2024-03-02\n" +
		"3,50,Panic,2024-03-03\n" +
		"4,55,Neutral,2024-03-01\n"

	table, err := ParseSentimentTable([]byte(data), "fg.csv")
	if err != nil {
		t.Fatalf("ParseSentimentTable: %v", err)
	}
	if !table.HasDate || !table.HasClassification {
		t.Fatalf("columns not detected: %+v", table)
	}
	if len(table.Records) != 4 {
		t.Fatalf("got %d records", len(table.Records))
	}
	if c := table.Records[0].Classification; c == nil || *c != models.ExtremeFear {
		t.Errorf("unexpected classification: %v", c)
	}
	if table.Records[2].Classification != nil {
		t.Errorf("unknown label should be nil")
	}
	byDate := table.ByDate()
	if c := byDate["2024-03-01"]; c == nil || *c != models.ExtremeFear {
		t.Errorf("first occurrence should win, got %v", c)
	}
}

func TestParseDay(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-03-01", "2024-03-01", true},
		{" 2024-03-01 ", "2024-03-01", true},
		{"2024-03-01 18:45:00", "2024-03-01", true},
		{"03/02/2024", "2024-03-02", true},
		{"NaT", "", false},
		{"tomorrow", "", false},
	}
	for _, c := range cases {
		got, ok := parseDay(c.in)
		if ok != c.ok {
			t.Errorf("parseDay(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if !ok {
			continue
		}
		if d := models.DateOf(got); string(d) != c.want {
			t.Errorf("parseDay(%q) = %s, want %s", c.in, d, c.want)
		}
		if got.Hour() != 0 || got.Location() != time.UTC {
			t.Errorf("parseDay(%q) = %v, want UTC midnight", c.in, got)
		}
	}
}

func TestParseSentimentTableMissingColumns(t *testing.T) {
	table, err := ParseSentimentTable([]byte("day,value\n2024-03-01,10\n"), "fg.csv")
	if err != nil {
		t.Fatalf("ParseSentimentTable: %v", err)
	}
	if !table.HasDate || table.HasClassification {
		t.Fatalf("unexpected column flags: %+v", table)
	}
	if table.Records[0].Date != "2024-03-01" {
		t.Errorf("unexpected date: %q", table.Records[0].Date)
	}
}

func TestOpenerLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	if err := os.WriteFile(path, []byte("account,pnl\nA,1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	o := NewOpener(appS3Config())
	ctx := context.Background()

	table, err := LoadTrades(ctx, o, path)
	if err != nil {
		t.Fatalf("LoadTrades: %v", err)
	}
	if len(table.Trades) != 1 {
		t.Fatalf("got %d trades", len(table.Trades))
	}

	sig1, err := o.Stat(ctx, path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if err := os.WriteFile(path, []byte("account,pnl\nA,1\nB,2\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	sig2, err := o.Stat(ctx, path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if sig1 == sig2 {
		t.Errorf("signature should change when content changes")
	}

	if _, err := o.ReadAll(ctx, filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

type fakeObjects struct {
	objects map[string][]byte
	gets    int
}

func (f *fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets++
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjects) HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]; !ok {
		return nil, errors.New("NotFound")
	}
	return &s3.HeadObjectOutput{
		LastModified: aws.Time(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		ETag:         aws.String(`"abc"`),
	}, nil
}

func TestOpenerS3(t *testing.T) {
	api := &fakeObjects{objects: map[string][]byte{
		"bucket/raw/fg.csv": []byte("date,classification\n2024-03-01,Fear\n"),
	}}
	o := NewOpenerWithClient(api)
	ctx := context.Background()

	table, err := LoadSentiment(ctx, o, "s3://bucket/raw/fg.csv")
	if err != nil {
		t.Fatalf("LoadSentiment: %v", err)
	}
	if len(table.Records) != 1 || *table.Records[0].Classification != models.Fear {
		t.Fatalf("unexpected records: %+v", table.Records)
	}
	if api.gets != 1 {
		t.Errorf("expected one GetObject call, got %d", api.gets)
	}

	sig, err := o.Stat(ctx, "s3://bucket/raw/fg.csv")
	if err != nil || sig == "" {
		t.Fatalf("Stat: %q %v", sig, err)
	}
	if _, err := o.ReadAll(ctx, "s3://bucket/missing.csv"); err == nil {
		t.Errorf("expected error for missing object")
	}
}

func appS3Config() appconfig.S3Config {
	return appconfig.S3Config{Region: "us-east-1"}
}
