package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradersentiment/internal/metrics"
	"tradersentiment/logger"
	"tradersentiment/models"
	"tradersentiment/reader"
)

// Result is one pipeline run: the joined panel plus the normalized inputs it
// was built from.
type Result struct {
	RunID     string
	Panel     *models.Panel
	Trades    *models.TradeTable
	Sentiment *models.SentimentTable
	BuiltAt   time.Time
}

// JoinPanel aggregates trades per account and day, joins the sentiment index
// and derives the sentiment score.
func JoinPanel(trades *models.TradeTable, sentiment *models.SentimentTable) (*models.Panel, error) {
	daily, err := AggregateDaily(trades)
	if err != nil {
		return nil, err
	}
	logger.RecordStageRows("aggregate", daily.Len())

	aligned, err := AlignWithSentiment(daily, sentiment)
	if err != nil {
		return nil, err
	}
	logger.RecordStageRows("align", aligned.Len())

	return AddSentimentScore(aligned), nil
}

// BuildPanel loads both sources and joins them.
func BuildPanel(ctx context.Context, opener *reader.Opener, tradesPath, sentimentPath string) (res *Result, err error) {
	start := time.Now()
	runID := uuid.NewString()
	log := logger.GetLogger()
	entry := log.WithRun(runID).WithComponent("pipeline").WithFields(logger.Fields{
		"trades_path":    tradesPath,
		"sentiment_path": sentimentPath,
	})
	entry.Info("building panel")

	defer func() {
		logger.IncrementPipelineRun(err != nil)
		rows := 0
		if res != nil {
			rows = res.Panel.Len()
		}
		metrics.ObservePipelineRun(rows, err)
		if err != nil {
			entry.WithError(err).Error("panel build failed")
		}
	}()

	trades, err := reader.LoadTrades(ctx, opener, tradesPath)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	sentiment, err := reader.LoadSentiment(ctx, opener, sentimentPath)
	if err != nil {
		return nil, fmt.Errorf("load sentiment: %w", err)
	}

	panel, err := JoinPanel(trades, sentiment)
	if err != nil {
		return nil, err
	}

	matched := 0
	for _, r := range panel.Rows {
		if r.Classification != nil {
			matched++
		}
	}
	metrics.ReportPipeline(log, "pipeline", metrics.PipelineStats{
		RunID:          runID,
		TradeRows:      len(trades.Trades),
		SentimentRows:  len(sentiment.Records),
		PanelRows:      panel.Len(),
		MatchedRows:    matched,
		Accounts:       len(panel.Accounts()),
		Duration:       time.Since(start),
		TradeFormat:    trades.Format,
		VolumeColumn:   string(panel.Columns.Volume),
		LeverageColumn: panel.Columns.Leverage,
	})

	return &Result{
		RunID:     runID,
		Panel:     panel,
		Trades:    trades,
		Sentiment: sentiment,
		BuiltAt:   time.Now().UTC(),
	}, nil
}
