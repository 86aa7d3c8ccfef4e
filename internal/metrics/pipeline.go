package metrics

import (
	"time"

	"tradersentiment/logger"
)

// PipelineStats summarizes one panel build.
type PipelineStats struct {
	RunID          string
	TradeRows      int
	SentimentRows  int
	PanelRows      int
	MatchedRows    int
	Accounts       int
	Duration       time.Duration
	TradeFormat    string
	VolumeColumn   string
	LeverageColumn bool
}

// ReportPipeline emits the metrics of a completed panel build using the
// provided logger.
func ReportPipeline(log *logger.Log, component string, stats PipelineStats) {
	if log == nil {
		log = logger.GetLogger()
	}
	coverage := float64(0)
	if stats.PanelRows > 0 {
		coverage = float64(stats.MatchedRows) / float64(stats.PanelRows)
	}

	fields := logger.Fields{"run_id": stats.RunID}
	EmitMetric(log, component, "trade_rows", stats.TradeRows, "gauge", fields)
	EmitMetric(log, component, "sentiment_rows", stats.SentimentRows, "gauge", fields)
	EmitMetric(log, component, "panel_rows", stats.PanelRows, "gauge", fields)
	EmitMetric(log, component, "accounts", stats.Accounts, "gauge", fields)
	EmitMetric(log, component, "sentiment_coverage", coverage, "gauge", fields)
	EmitMetric(log, component, "build_duration", float64(stats.Duration.Milliseconds()), "duration", fields)

	ObserveStage("build_panel", stats.Duration)

	log.WithComponent(component).WithFields(logger.Fields{
		"run_id":             stats.RunID,
		"trade_rows":         stats.TradeRows,
		"sentiment_rows":     stats.SentimentRows,
		"panel_rows":         stats.PanelRows,
		"matched_rows":       stats.MatchedRows,
		"accounts":           stats.Accounts,
		"sentiment_coverage": coverage,
		"trade_format":       stats.TradeFormat,
		"volume_column":      stats.VolumeColumn,
		"leverage_column":    stats.LeverageColumn,
		"duration_ms":        stats.Duration.Milliseconds(),
	}).Info("pipeline report")
}
