package processor

import (
	"tradersentiment/models"
)

// AlignWithSentiment left-joins the daily panel with the sentiment index on
// date, keeping only the classification. Every input row is kept; rows with
// no matching day get a nil classification. The input panel is not modified.
func AlignWithSentiment(panel *models.Panel, sentiment *models.SentimentTable) (*models.Panel, error) {
	if !panel.Columns.Date {
		return nil, &models.SchemaError{Table: "daily aggregates", Column: "date"}
	}
	if !sentiment.HasDate {
		return nil, &models.SchemaError{Table: "sentiment index", Column: "date"}
	}
	if !sentiment.HasClassification {
		return nil, &models.SchemaError{Table: "sentiment index", Column: "classification"}
	}

	byDate := sentiment.ByDate()
	out := &models.Panel{Columns: panel.Columns, Rows: make([]models.PanelRow, len(panel.Rows))}
	out.Columns.Sentiment = true
	for i, row := range panel.Rows {
		row.Classification = nil
		if row.Date.Valid() {
			if c := byDate[row.Date]; c != nil {
				v := *c
				row.Classification = &v
			}
		}
		out.Rows[i] = row
	}
	return out, nil
}
