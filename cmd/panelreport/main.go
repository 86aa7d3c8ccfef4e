// Command panelreport runs the pipeline once and prints the project status
// report: record counts, sentiment coverage, distribution and the first rows.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"tradersentiment/config"
	"tradersentiment/internal/analytics"
	"tradersentiment/logger"
	"tradersentiment/models"
	"tradersentiment/processor"
	"tradersentiment/reader"
	"tradersentiment/writer"
)

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	tradesPath := flag.String("trades", "", "Trade source, overrides data.trades_path")
	sentimentPath := flag.String("sentiment", "", "Sentiment source, overrides data.sentiment_path")
	head := flag.Int("head", 5, "Number of panel rows to print")
	asJSON := flag.Bool("json", false, "Print the report as JSON")
	xlsxPath := flag.String("xlsx", "", "Also write the panel to this xlsx file (local path or s3://bucket/key)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	// Keep stdout for the report.
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, "stderr", 0); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}
	if *tradesPath != "" {
		cfg.Data.TradesPath = *tradesPath
	}
	if *sentimentPath != "" {
		cfg.Data.SentimentPath = *sentimentPath
	}

	res, err := processor.BuildPanel(context.Background(), reader.NewOpener(cfg.Storage.S3), cfg.Data.TradesPath, cfg.Data.SentimentPath)
	if err != nil {
		log.WithError(err).Error("pipeline failed")
		os.Exit(1)
	}

	report := analytics.Status(res.Panel, *head)
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.WithError(err).Error("failed to encode report")
			os.Exit(1)
		}
	} else {
		printReport(os.Stdout, res.Panel.ColumnNames(), report)
	}

	if *xlsxPath != "" {
		if err := exportPanel(context.Background(), writer.NewUploader(cfg.Storage.S3), *xlsxPath, res.Panel); err != nil {
			log.WithError(err).Error("failed to export panel")
			os.Exit(1)
		}
		log.WithComponent("panelreport").WithFields(logger.Fields{"path": *xlsxPath, "rows": res.Panel.Len()}).Info("panel exported")
	}
}

func exportPanel(ctx context.Context, uploader *writer.Uploader, dest string, panel *models.Panel) error {
	var buf bytes.Buffer
	if err := writer.WritePanelXLSX(&buf, panel); err != nil {
		return err
	}
	return uploader.Write(ctx, dest, buf.Bytes(), writer.ContentTypeXLSX)
}

func printReport(w io.Writer, columns []string, r analytics.StatusReport) {
	fmt.Fprintln(w, "Project status")
	fmt.Fprintf(w, "  records:         %d\n", r.Records)
	fmt.Fprintf(w, "  with sentiment:  %d\n", r.WithSentiment)
	fmt.Fprintf(w, "  unique accounts: %d\n", r.UniqueAccounts)

	fmt.Fprintln(w, "\nSentiment distribution")
	for _, d := range r.Distribution {
		fmt.Fprintf(w, "  %-14s %d\n", d.Classification, d.Rows)
	}

	if len(r.Head) == 0 {
		return
	}
	fmt.Fprintln(w, "\nFirst rows")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for _, row := range r.Head {
		cells := make([]string, len(columns))
		for i, c := range columns {
			if v := row[c]; v != nil {
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}
