package processor

import (
	"tradersentiment/models"
)

// SentimentScore maps a classification to its 0..4 ordinal. Nil or unknown
// classifications have no score.
func SentimentScore(c *models.Sentiment) *int {
	if c == nil {
		return nil
	}
	score, ok := c.Score()
	if !ok {
		return nil
	}
	return &score
}

// AddSentimentScore returns a copy of panel with sentiment_score derived from
// each row's classification.
func AddSentimentScore(panel *models.Panel) *models.Panel {
	out := &models.Panel{Columns: panel.Columns, Rows: make([]models.PanelRow, len(panel.Rows))}
	out.Columns.Sentiment = true
	for i, row := range panel.Rows {
		row.SentimentScore = SentimentScore(row.Classification)
		out.Rows[i] = row
	}
	return out
}
