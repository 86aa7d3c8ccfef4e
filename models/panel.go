package models

// DailyAggregate is one (account, date) group of trades.
type DailyAggregate struct {
	Account        string   `json:"account"`
	Date           Date     `json:"date"`
	Trades         int      `json:"trades"`
	TotalPnL       *float64 `json:"total_pnl"`
	AvgPnLPerTrade *float64 `json:"avg_pnl_per_trade"`
	WinningTrades  *int     `json:"winning_trades"`
	LosingTrades   *int     `json:"losing_trades"`
	Volume         *float64 `json:"volume"`
	LongBias       *float64 `json:"long_bias"`
	AvgLeverage    *float64 `json:"avg_leverage"`
	TotalFees      *float64 `json:"total_fees"`
}

// MetricColumns records which optional columns a daily table carries. A
// column that is absent is omitted from every row rather than zero-filled.
type MetricColumns struct {
	Account   bool       `json:"account"`
	Date      bool       `json:"date"`
	PnL       bool       `json:"pnl"`
	Volume    VolumeKind `json:"volume"`
	LongBias  bool       `json:"long_bias"`
	Leverage  bool       `json:"leverage"`
	Fees      bool       `json:"fees"`
	Sentiment bool       `json:"sentiment"`
}

// PanelRow is a daily aggregate joined with the day's sentiment.
type PanelRow struct {
	DailyAggregate
	Classification *Sentiment `json:"classification"`
	SentimentScore *int       `json:"sentiment_score"`
}

// Panel is the joined per-account, per-day table.
type Panel struct {
	Columns MetricColumns
	Rows    []PanelRow
}

// Len returns the number of rows.
func (p *Panel) Len() int {
	return len(p.Rows)
}

// ColumnNames lists the columns present in the panel in display order.
func (p *Panel) ColumnNames() []string {
	c := p.Columns
	names := make([]string, 0, 14)
	if c.Account {
		names = append(names, "account")
	}
	if c.Date {
		names = append(names, "date")
	}
	names = append(names, "trades")
	if c.PnL {
		names = append(names, "total_pnl", "avg_pnl_per_trade", "winning_trades", "losing_trades")
	}
	if c.Volume != VolumeNone {
		names = append(names, string(c.Volume))
	}
	if c.LongBias {
		names = append(names, "long_bias")
	}
	if c.Leverage {
		names = append(names, "avg_leverage")
	}
	if c.Fees {
		names = append(names, "total_fees")
	}
	if c.Sentiment {
		names = append(names, "classification", "sentiment_score")
	}
	return names
}

// Value returns the cell of row i for column name, or nil when the cell is
// null or the column is absent.
func (p *Panel) Value(i int, name string) interface{} {
	r := p.Rows[i]
	switch name {
	case "account":
		return r.Account
	case "date":
		if !r.Date.Valid() {
			return nil
		}
		return string(r.Date)
	case "trades":
		return r.Trades
	case "total_pnl":
		return floatCell(r.TotalPnL)
	case "avg_pnl_per_trade":
		return floatCell(r.AvgPnLPerTrade)
	case "winning_trades":
		return intCell(r.WinningTrades)
	case "losing_trades":
		return intCell(r.LosingTrades)
	case string(VolumeUSD), string(VolumeTokens):
		if string(p.Columns.Volume) != name {
			return nil
		}
		return floatCell(r.Volume)
	case "long_bias":
		return floatCell(r.LongBias)
	case "avg_leverage":
		return floatCell(r.AvgLeverage)
	case "total_fees":
		return floatCell(r.TotalFees)
	case "classification":
		if r.Classification == nil {
			return nil
		}
		return string(*r.Classification)
	case "sentiment_score":
		return intCell(r.SentimentScore)
	}
	return nil
}

// Records renders the panel as one map per row keyed by ColumnNames.
func (p *Panel) Records() []map[string]interface{} {
	names := p.ColumnNames()
	out := make([]map[string]interface{}, len(p.Rows))
	for i := range p.Rows {
		rec := make(map[string]interface{}, len(names))
		for _, n := range names {
			rec[n] = p.Value(i, n)
		}
		out[i] = rec
	}
	return out
}

// FilterByClassification returns a panel holding only rows whose
// classification is one of keep. An empty keep returns a copy of p. Rows
// with no classification never match a non-empty filter.
func (p *Panel) FilterByClassification(keep ...Sentiment) *Panel {
	out := &Panel{Columns: p.Columns}
	if len(keep) == 0 {
		out.Rows = append([]PanelRow(nil), p.Rows...)
		return out
	}
	set := make(map[Sentiment]struct{}, len(keep))
	for _, s := range keep {
		set[s] = struct{}{}
	}
	for _, r := range p.Rows {
		if r.Classification == nil {
			continue
		}
		if _, ok := set[*r.Classification]; ok {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Accounts returns the distinct accounts in first-seen order.
func (p *Panel) Accounts() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range p.Rows {
		if _, ok := seen[r.Account]; ok {
			continue
		}
		seen[r.Account] = struct{}{}
		out = append(out, r.Account)
	}
	return out
}

// TraderProfile is the per-account summary used for clustering.
type TraderProfile struct {
	Account       string  `json:"account"`
	TotalPnL      float64 `json:"total_pnl"`
	Volume        float64 `json:"volume"`
	Trades        int     `json:"trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	Cluster       int     `json:"cluster"`
}

func floatCell(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func intCell(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
