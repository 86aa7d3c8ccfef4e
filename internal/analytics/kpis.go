package analytics

import (
	"sort"

	"tradersentiment/models"
)

// KPIs are the headline totals of a (possibly filtered) panel. A nil total
// means the column is absent.
type KPIs struct {
	Rows        int      `json:"rows"`
	TotalTrades int      `json:"total_trades"`
	TotalVolume *float64 `json:"total_volume"`
	TotalPnL    *float64 `json:"total_pnl"`
	AvgLeverage *float64 `json:"avg_leverage"`
}

func ComputeKPIs(panel *models.Panel) KPIs {
	k := KPIs{Rows: panel.Len()}
	var volume, pnl, lev float64
	levRows := 0
	for _, r := range panel.Rows {
		k.TotalTrades += r.Trades
		volume += deref(r.Volume)
		pnl += deref(r.TotalPnL)
		if r.AvgLeverage != nil {
			lev += *r.AvgLeverage
			levRows++
		}
	}
	if panel.Columns.Volume != models.VolumeNone {
		k.TotalVolume = &volume
	}
	if panel.Columns.PnL {
		k.TotalPnL = &pnl
	}
	if panel.Columns.Leverage && levRows > 0 {
		avg := lev / float64(levRows)
		k.AvgLeverage = &avg
	}
	return k
}

// SentimentCount is one bucket of the sentiment distribution.
type SentimentCount struct {
	Classification string `json:"classification"`
	Rows           int    `json:"rows"`
}

// Unclassified labels panel rows without a sentiment match.
const Unclassified = "unclassified"

// SentimentDistribution counts panel rows per classification, fearful to
// greedy, with unmatched rows last. Empty buckets are omitted.
func SentimentDistribution(panel *models.Panel) []SentimentCount {
	counts := make(map[models.Sentiment]int)
	missing := 0
	for _, r := range panel.Rows {
		if r.Classification == nil {
			missing++
			continue
		}
		counts[*r.Classification]++
	}
	var out []SentimentCount
	for _, s := range models.Sentiments {
		if n := counts[s]; n > 0 {
			out = append(out, SentimentCount{Classification: string(s), Rows: n})
		}
	}
	if missing > 0 {
		out = append(out, SentimentCount{Classification: Unclassified, Rows: missing})
	}
	return out
}

// StatusReport is the project status summary printed after a pipeline run.
type StatusReport struct {
	Records        int                      `json:"records"`
	WithSentiment  int                      `json:"with_sentiment"`
	UniqueAccounts int                      `json:"unique_accounts"`
	Distribution   []SentimentCount         `json:"distribution"`
	Head           []map[string]interface{} `json:"head"`
}

// Status builds a StatusReport with the first head rows of the panel.
func Status(panel *models.Panel, head int) StatusReport {
	rep := StatusReport{
		Records:        panel.Len(),
		UniqueAccounts: len(panel.Accounts()),
		Distribution:   SentimentDistribution(panel),
	}
	for _, r := range panel.Rows {
		if r.Classification != nil {
			rep.WithSentiment++
		}
	}
	records := panel.Records()
	if head > len(records) {
		head = len(records)
	}
	if head > 0 {
		rep.Head = records[:head]
	}
	return rep
}

// ParseClassifications maps filter labels to sentiments, skipping unknown
// ones. The result is sorted fearful to greedy.
func ParseClassifications(labels []string) []models.Sentiment {
	var out []models.Sentiment
	seen := make(map[models.Sentiment]bool)
	for _, l := range labels {
		s, ok := models.ParseSentiment(l)
		if !ok || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Slice(out, func(a, b int) bool {
		sa, _ := out[a].Score()
		sb, _ := out[b].Score()
		return sa < sb
	})
	return out
}
