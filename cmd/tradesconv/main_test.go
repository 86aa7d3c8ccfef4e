package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"tradersentiment/config"
	"tradersentiment/reader"
	"tradersentiment/writer"
)

func TestConvertRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "trades.csv")
	csv := "Account,Timestamp,Closed PnL,Size USD,Side\n0xA,1709294400000,12.5,100,BUY\n0xB,1709294460000,,50,SELL\n"
	if err := os.WriteFile(in, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "trades.parquet")

	opener := reader.NewOpener(config.S3Config{})
	if err := convert(context.Background(), opener, writer.NewUploader(config.S3Config{}), in, out); err != nil {
		t.Fatalf("convert: %v", err)
	}

	table, err := reader.LoadTrades(context.Background(), opener, out)
	if err != nil {
		t.Fatalf("LoadTrades(parquet): %v", err)
	}
	if table.Format != reader.FormatParquet || len(table.Trades) != 2 {
		t.Fatalf("format=%s rows=%d", table.Format, len(table.Trades))
	}
	first := table.Trades[0]
	if first.Account != "0xA" || first.PnL == nil || *first.PnL != 12.5 || first.Date != "2024-03-01" {
		t.Errorf("first trade = %+v", first)
	}
	if table.Trades[1].PnL != nil {
		t.Errorf("null pnl should survive conversion, got %v", *table.Trades[1].PnL)
	}
}

func TestConvertMissingInput(t *testing.T) {
	err := convert(context.Background(), reader.NewOpener(config.S3Config{}), writer.NewUploader(config.S3Config{}), filepath.Join(t.TempDir(), "nope.csv"), filepath.Join(t.TempDir(), "out.parquet"))
	if err == nil {
		t.Fatal("expected error for missing input")
	}
}

type recordingPutter struct {
	bucket, key string
	body        []byte
}

func (r *recordingPutter) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	r.bucket, r.key = aws.ToString(in.Bucket), aws.ToString(in.Key)
	body, err := io.ReadAll(in.Body)
	r.body = body
	return &s3.PutObjectOutput{}, err
}

func TestConvertToS3(t *testing.T) {
	in := filepath.Join(t.TempDir(), "trades.csv")
	if err := os.WriteFile(in, []byte("Account,Timestamp,Closed PnL\n0xA,1709294400000,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	putter := &recordingPutter{}
	err := convert(context.Background(), reader.NewOpener(config.S3Config{}), writer.NewUploaderWithClient(putter), in, "s3://lake/trades/2024.parquet")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if putter.bucket != "lake" || putter.key != "trades/2024.parquet" {
		t.Errorf("uploaded to %s/%s", putter.bucket, putter.key)
	}
	if !bytes.HasPrefix(putter.body, []byte("PAR1")) {
		t.Errorf("uploaded body is not parquet")
	}
}
