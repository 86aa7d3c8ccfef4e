package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"tradersentiment/models"
)

// SharpeRatio is (mean(r) - riskFree) / std(r) with sample deviation. It is
// zero for fewer than two returns or a flat series.
func SharpeRatio(returns []float64, riskFree float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return sanitize((mean - riskFree) / std)
}

// SortinoRatio is (mean(r) - target) / std(r[r < target]). It is zero when
// fewer than two returns fall below target or their deviation is zero.
func SortinoRatio(returns []float64, target float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var downside []float64
	for _, r := range returns {
		if r < target {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		return 0
	}
	std := stat.StdDev(downside, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return sanitize((stat.Mean(returns, nil) - target) / std)
}

// MaxDrawdown returns the most negative (value - peak) / peak over a
// cumulative series. Points whose running peak is not positive are skipped;
// ok is false when none remain.
func MaxDrawdown(cumulative []float64) (float64, bool) {
	peak := math.Inf(-1)
	worst, ok := 0.0, false
	for _, v := range cumulative {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (v - peak) / peak
		if !ok || dd < worst {
			worst, ok = dd, true
		}
	}
	return worst, ok
}

// TraderRisk is one row of the risk report.
type TraderRisk struct {
	Account     string   `json:"account"`
	TotalPnL    float64  `json:"total_pnl"`
	Days        int      `json:"days"`
	Sharpe      float64  `json:"sharpe"`
	Sortino     float64  `json:"sortino"`
	MaxDrawdown *float64 `json:"max_drawdown"`
}

// RiskReport scores the opts.TopTraders most profitable accounts. Each
// account's daily PnL in date order is its return series.
func RiskReport(panel *models.Panel, opts Options) []TraderRisk {
	opts = opts.withDefaults()
	if !panel.Columns.PnL {
		return nil
	}

	type series struct {
		dates   []models.Date
		returns []float64
	}
	byAccount := make(map[string]*series)
	for _, r := range panel.Rows {
		s, ok := byAccount[r.Account]
		if !ok {
			s = &series{}
			byAccount[r.Account] = s
		}
		if r.TotalPnL == nil {
			continue
		}
		s.dates = append(s.dates, r.Date)
		s.returns = append(s.returns, *r.TotalPnL)
	}

	out := make([]TraderRisk, 0, len(byAccount))
	for account, s := range byAccount {
		idx := make([]int, len(s.dates))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return s.dates[idx[a]] < s.dates[idx[b]] })
		returns := make([]float64, len(idx))
		for i, j := range idx {
			returns[i] = s.returns[j]
		}

		cum := make([]float64, len(returns))
		floats.CumSum(cum, returns)
		row := TraderRisk{
			Account:  account,
			TotalPnL: floats.Sum(returns),
			Days:     len(returns),
			Sharpe:   SharpeRatio(returns, opts.RiskFreeRate),
			Sortino:  SortinoRatio(returns, opts.TargetReturn),
		}
		if dd, ok := MaxDrawdown(cum); ok {
			row.MaxDrawdown = &dd
		}
		out = append(out, row)
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].TotalPnL != out[b].TotalPnL {
			return out[a].TotalPnL > out[b].TotalPnL
		}
		return out[a].Account < out[b].Account
	})
	if len(out) > opts.TopTraders {
		out = out[:opts.TopTraders]
	}
	return out
}
