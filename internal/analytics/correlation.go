package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"tradersentiment/models"
)

// Correlations is a symmetric Pearson matrix over the panel's numeric
// columns. A nil cell is undefined: fewer than two complete pairs or a
// column without variance over those pairs.
type Correlations struct {
	Columns []string     `json:"columns"`
	Values  [][]*float64 `json:"values"`
}

var numericColumns = map[string]bool{
	"trades":                    true,
	"total_pnl":                 true,
	"avg_pnl_per_trade":         true,
	"winning_trades":            true,
	"losing_trades":             true,
	string(models.VolumeUSD):    true,
	string(models.VolumeTokens): true,
	"long_bias":                 true,
	"avg_leverage":              true,
	"total_fees":                true,
	"sentiment_score":           true,
}

// NumericColumns lists the panel's numeric columns in display order.
func NumericColumns(panel *models.Panel) []string {
	var out []string
	for _, name := range panel.ColumnNames() {
		if numericColumns[name] {
			out = append(out, name)
		}
	}
	return out
}

// Get returns the coefficient between two columns.
func (c *Correlations) Get(a, b string) (*float64, bool) {
	ia, ib := -1, -1
	for i, name := range c.Columns {
		if name == a {
			ia = i
		}
		if name == b {
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return nil, false
	}
	return c.Values[ia][ib], true
}

// CorrelationMatrix computes pairwise-complete Pearson correlations.
func CorrelationMatrix(panel *models.Panel) *Correlations {
	cols := NumericColumns(panel)
	data := make([][]*float64, len(cols))
	for j, name := range cols {
		data[j] = make([]*float64, panel.Len())
		for i := 0; i < panel.Len(); i++ {
			if v, ok := numeric(panel.Value(i, name)); ok {
				v := v
				data[j][i] = &v
			}
		}
	}

	values := make([][]*float64, len(cols))
	for i := range values {
		values[i] = make([]*float64, len(cols))
	}
	for a := range cols {
		for b := a; b < len(cols); b++ {
			r := pairwise(data[a], data[b])
			if a == b && r != nil {
				r = models.Float(1)
			}
			values[a][b] = r
			values[b][a] = r
		}
	}
	return &Correlations{Columns: cols, Values: values}
}

func pairwise(x, y []*float64) *float64 {
	var xs, ys []float64
	for i := range x {
		if x[i] == nil || y[i] == nil {
			continue
		}
		xs = append(xs, *x[i])
		ys = append(ys, *y[i])
	}
	if len(xs) < 2 {
		return nil
	}
	if stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
		return nil
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		return nil
	}
	r = math.Max(-1, math.Min(1, r))
	return &r
}
