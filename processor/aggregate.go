package processor

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"tradersentiment/models"
)

type groupKey struct {
	account string
	date    models.Date
}

// nullableSum adds the non-null values of a column. It stays null until the
// first non-null value arrives, so an all-null group sums to null.
type nullableSum struct {
	total decimal.Decimal
	seen  int
}

func (s *nullableSum) add(v *float64) {
	if v == nil {
		return
	}
	s.total = s.total.Add(decimal.NewFromFloat(*v))
	s.seen++
}

func (s *nullableSum) value() *float64 {
	if s.seen == 0 {
		return nil
	}
	f, _ := s.total.Float64()
	return &f
}

func (s *nullableSum) mean() *float64 {
	if s.seen == 0 {
		return nil
	}
	f, _ := s.total.Div(decimal.NewFromInt(int64(s.seen))).Float64()
	return &f
}

type groupState struct {
	key      groupKey
	trades   int
	pnl      nullableSum
	wins     int
	losses   int
	volume   decimal.Decimal
	longs    int
	leverage nullableSum
	fees     nullableSum
}

// AggregateDaily groups trades by account and day. The group key is whichever
// of the two the source carries; a source with neither cannot be grouped.
func AggregateDaily(table *models.TradeTable) (*models.Panel, error) {
	schema := table.Schema
	cols := models.MetricColumns{
		Account:  schema.Account.Present,
		Date:     schema.HasDate(),
		PnL:      schema.PnL.Present,
		Volume:   schema.VolumeKind(),
		LongBias: schema.Side.Present,
		Leverage: schema.Leverage.Present,
		Fees:     schema.Fee.Present,
	}
	if !cols.Account && !cols.Date {
		return nil, &models.ConfigurationError{Reason: "trade source has neither an account nor a timestamp column to group by"}
	}

	groups := make(map[groupKey]*groupState)
	order := make([]*groupState, 0)
	for _, t := range table.Trades {
		var key groupKey
		if cols.Account {
			key.account = t.Account
		}
		if cols.Date {
			key.date = t.Date
		}
		g, ok := groups[key]
		if !ok {
			g = &groupState{key: key}
			groups[key] = g
			order = append(order, g)
		}

		g.trades++
		if cols.PnL {
			g.pnl.add(t.PnL)
			if t.PnL != nil {
				if *t.PnL > 0 {
					g.wins++
				} else if *t.PnL < 0 {
					g.losses++
				}
			}
		}
		if v := t.Volume(cols.Volume); v != nil {
			g.volume = g.volume.Add(decimal.NewFromFloat(math.Abs(*v)))
		}
		if t.IsLong() {
			g.longs++
		}
		if cols.Leverage {
			g.leverage.add(t.Leverage)
		}
		if cols.Fees {
			g.fees.add(t.Fee)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].key.account != order[j].key.account {
			return order[i].key.account < order[j].key.account
		}
		return order[i].key.date < order[j].key.date
	})

	rows := make([]models.PanelRow, len(order))
	for i, g := range order {
		agg := models.DailyAggregate{
			Account: g.key.account,
			Date:    g.key.date,
			Trades:  g.trades,
		}
		if cols.PnL {
			agg.TotalPnL = g.pnl.value()
			agg.AvgPnLPerTrade = g.pnl.mean()
			agg.WinningTrades = models.Int(g.wins)
			agg.LosingTrades = models.Int(g.losses)
		}
		if cols.Volume != models.VolumeNone {
			v, _ := g.volume.Float64()
			agg.Volume = &v
		}
		if cols.LongBias {
			bias := 0.0
			if g.trades > 0 {
				bias = float64(g.longs) / float64(g.trades)
			}
			agg.LongBias = &bias
		}
		if cols.Leverage {
			agg.AvgLeverage = g.leverage.mean()
		}
		if cols.Fees {
			agg.TotalFees = g.fees.value()
		}
		rows[i] = models.PanelRow{DailyAggregate: agg}
	}

	return &models.Panel{Columns: cols, Rows: rows}, nil
}
