package reader

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"tradersentiment/logger"
	"tradersentiment/models"
)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// LoadTrades reads and normalizes a trade source.
func LoadTrades(ctx context.Context, opener *Opener, path string) (*models.TradeTable, error) {
	start := time.Now()
	data, err := opener.ReadAll(ctx, path)
	if err != nil {
		return nil, err
	}
	table, err := ParseTradeTable(data, path)
	if err != nil {
		return nil, err
	}

	log := logger.GetLogger().WithComponent("trades_reader")
	logger.LogPerformanceEntry(log, "trades_reader", "load_trades", time.Since(start), logger.Fields{
		"source": path,
		"format": table.Format,
	})
	logger.LogDataFlowEntry(log, path, "trades", len(table.Trades), "trade")
	return table, nil
}

// ParseTradeTable decodes trade bytes as CSV and falls back to Parquet.
func ParseTradeTable(data []byte, source string) (*models.TradeTable, error) {
	format := FormatCSV
	header, rows, textErr := readCSVTable(data)
	if textErr != nil {
		var colErr error
		header, rows, colErr = readParquetTable(data)
		if colErr != nil {
			return nil, &models.FormatError{Source: source, TextErr: textErr, ColumnsErr: colErr}
		}
		format = FormatParquet
	}
	return normalizeTrades(header, rows, source, format), nil
}

var (
	errBinary   = errors.New("content is not utf-8 text")
	errNoHeader = errors.New("no header row")
)

// readCSVTable parses delimited text with a mandatory header row. Short rows
// are padded with empty cells; rows wider than the header are rejected.
func readCSVTable(data []byte) ([]string, [][]string, error) {
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return nil, nil, errBinary
	}
	data = bytes.TrimPrefix(data, []byte(utf8BOM))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, errNoHeader
	}
	header := records[0]
	blank := true
	for _, h := range header {
		if strings.TrimSpace(h) != "" {
			blank = false
			break
		}
	}
	if blank {
		return nil, nil, errNoHeader
	}

	rows := records[1:]
	for i, row := range rows {
		switch {
		case len(row) > len(header):
			return nil, nil, fmt.Errorf("parse csv: row %d has %d fields, header has %d", i+2, len(row), len(header))
		case len(row) < len(header):
			padded := make([]string, len(header))
			copy(padded, row)
			rows[i] = padded
		}
	}
	return header, rows, nil
}

func resolveColumn(idx headerIndex, candidates []string) (models.Column, int) {
	i, name, ok := idx.resolve(candidates)
	return models.Column{Name: name, Present: ok}, i
}

func normalizeTrades(header []string, rows [][]string, source string, format string) *models.TradeTable {
	log := logger.GetLogger().WithComponent("trades_reader").WithFields(logger.Fields{"source": source})

	idx := newHeaderIndex(header)
	var schema models.TradeSchema
	var accountIdx, timeIdx, pnlIdx, usdIdx, sizeIdx, sideIdx, levIdx, feeIdx int
	schema.Account, accountIdx = resolveColumn(idx, accountColumns)
	schema.Time, timeIdx = resolveColumn(idx, timeColumns)
	schema.PnL, pnlIdx = resolveColumn(idx, pnlColumns)
	schema.SizeUSD, usdIdx = resolveColumn(idx, sizeUSDColumns)
	schema.Size, sizeIdx = resolveColumn(idx, sizeColumns)
	schema.Side, sideIdx = resolveColumn(idx, sideColumns)
	schema.Leverage, levIdx = resolveColumn(idx, leverageColumns)
	schema.Fee, feeIdx = resolveColumn(idx, feeColumns)

	trades := make([]models.Trade, len(rows))
	invalid := map[string]int{}

	number := func(row []string, i int, name string) *float64 {
		if i < 0 || i >= len(row) {
			return nil
		}
		v, ok := parseNumber(row[i])
		if !ok {
			invalid[name]++
		}
		return v
	}

	for r, row := range rows {
		t := &trades[r]
		if accountIdx >= 0 && accountIdx < len(row) {
			t.Account = strings.TrimSpace(row[accountIdx])
		}
		if sideIdx >= 0 && sideIdx < len(row) {
			t.Side = strings.TrimSpace(row[sideIdx])
		}
		t.PnL = number(row, pnlIdx, schema.PnL.Name)
		t.SizeUSD = number(row, usdIdx, schema.SizeUSD.Name)
		t.Size = number(row, sizeIdx, schema.Size.Name)
		t.Leverage = number(row, levIdx, schema.Leverage.Name)
		t.Fee = number(row, feeIdx, schema.Fee.Name)
	}

	if schema.Time.Present {
		values := make([]string, len(rows))
		for r, row := range rows {
			if timeIdx < len(row) {
				values[r] = row[timeIdx]
			}
		}
		times, failed := parseTimestamps(values)
		for r, ts := range times {
			if ts == nil {
				continue
			}
			trades[r].Time = ts
			trades[r].Date = models.DateOf(*ts)
		}
		if failed > 0 {
			invalid[schema.Time.Name] = failed
		}
	}

	for column, count := range invalid {
		log.WithFields(logger.Fields{"column": column, "cells": count}).Warn("unparseable cells treated as null")
	}

	log.WithFields(logger.Fields{
		"format":      format,
		"rows":        len(trades),
		"volume_kind": string(schema.VolumeKind()),
		"has_date":    schema.HasDate(),
	}).Debug("normalized trade table")

	return &models.TradeTable{
		Source: source,
		Format: format,
		Schema: schema,
		Trades: trades,
	}
}
