// Command tradesconv converts a trade CSV into the Parquet layout the trade
// loader reads.
package main

import (
	"context"
	"flag"
	"os"

	"tradersentiment/config"
	"tradersentiment/logger"
	"tradersentiment/reader"
	"tradersentiment/writer"
)

func main() {
	log := logger.GetLogger()

	in := flag.String("in", "", "Trade CSV (local path or s3://bucket/key)")
	out := flag.String("out", "", "Destination parquet file (local path or s3://bucket/key)")
	region := flag.String("region", os.Getenv("AWS_REGION"), "AWS region for s3 sources")
	flag.Parse()

	if *in == "" || *out == "" {
		flag.Usage()
		os.Exit(2)
	}

	s3cfg := config.S3Config{Region: *region}
	if err := convert(context.Background(), reader.NewOpener(s3cfg), writer.NewUploader(s3cfg), *in, *out); err != nil {
		log.WithComponent("tradesconv").WithError(err).Error("conversion failed")
		os.Exit(1)
	}
}

func convert(ctx context.Context, opener *reader.Opener, uploader *writer.Uploader, in, out string) error {
	table, err := reader.LoadTrades(ctx, opener, in)
	if err != nil {
		return err
	}
	data, err := writer.EncodeTradesParquet(table.Trades)
	if err != nil {
		return err
	}
	if err := uploader.Write(ctx, out, data, writer.ContentTypeParquet); err != nil {
		return err
	}
	logger.GetLogger().WithComponent("tradesconv").WithFields(logger.Fields{
		"source":      in,
		"destination": out,
		"rows":        len(table.Trades),
		"format":      table.Format,
		"bytes":       len(data),
	}).Info("trades converted")
	return nil
}
