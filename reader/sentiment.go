package reader

import (
	"context"
	"fmt"
	"strings"

	"tradersentiment/logger"
	"tradersentiment/models"
)

// LoadSentiment reads and normalizes a daily sentiment CSV.
func LoadSentiment(ctx context.Context, opener *Opener, path string) (*models.SentimentTable, error) {
	data, err := opener.ReadAll(ctx, path)
	if err != nil {
		return nil, err
	}
	table, err := ParseSentimentTable(data, path)
	if err != nil {
		return nil, err
	}
	logger.LogDataFlowEntry(logger.GetLogger().WithComponent("sentiment_reader"), path, "sentiment", len(table.Records), "sentiment")
	return table, nil
}

// ParseSentimentTable decodes a sentiment CSV. Missing date or classification
// columns are recorded on the table rather than rejected here.
func ParseSentimentTable(data []byte, source string) (*models.SentimentTable, error) {
	header, rows, err := readCSVTable(data)
	if err != nil {
		return nil, fmt.Errorf("sentiment source %s: %w", source, err)
	}

	log := logger.GetLogger().WithComponent("sentiment_reader").WithFields(logger.Fields{"source": source})

	idx := newHeaderIndex(header)
	dateIdx, _, hasDate := idx.resolve(sentimentDateColumns)
	clsIdx, _, hasCls := idx.resolve(classificationColumns)

	table := &models.SentimentTable{
		Source:            source,
		HasDate:           hasDate,
		HasClassification: hasCls,
		Records:           make([]models.SentimentRecord, 0, len(rows)),
	}

	seen := map[models.Date]bool{}
	badDates, unknownLabels, duplicates := 0, 0, 0
	for _, row := range rows {
		var rec models.SentimentRecord
		if hasDate && dateIdx < len(row) {
			if day, ok := parseDay(row[dateIdx]); ok {
				rec.Date = models.DateOf(day)
			} else if strings.TrimSpace(row[dateIdx]) != "" {
				badDates++
			}
		}
		if hasCls && clsIdx < len(row) {
			raw := strings.TrimSpace(row[clsIdx])
			if s, ok := models.ParseSentiment(raw); ok {
				rec.Classification = &s
			} else if !isNullCell(raw) {
				unknownLabels++
			}
		}
		if rec.Date.Valid() {
			if seen[rec.Date] {
				duplicates++
			}
			seen[rec.Date] = true
		}
		table.Records = append(table.Records, rec)
	}

	if badDates > 0 {
		log.WithFields(logger.Fields{"cells": badDates}).Warn("unparseable sentiment dates treated as null")
	}
	if unknownLabels > 0 {
		log.WithFields(logger.Fields{"cells": unknownLabels}).Warn("unknown sentiment labels treated as null")
	}
	if duplicates > 0 {
		log.WithFields(logger.Fields{"dates": duplicates}).Warn("duplicate sentiment dates; first occurrence kept")
	}
	return table, nil
}
