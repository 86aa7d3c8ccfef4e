package models

import (
	"fmt"
	"strings"
	"time"
)

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// DATES ////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// DateLayout is the canonical text form of a Date.
const DateLayout = "2006-01-02"

// Date is a UTC calendar day formatted as YYYY-MM-DD. The zero value is an
// unknown day (a trade whose timestamp could not be parsed).
type Date string

// DateOf returns the UTC calendar day of t.
func DateOf(t time.Time) Date {
	return Date(t.UTC().Format(DateLayout))
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Valid reports whether d names a known day.
func (d Date) Valid() bool {
	return d != ""
}

// Time returns midnight UTC of d.
func (d Date) Time() (time.Time, error) {
	return time.Parse(DateLayout, string(d))
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// TRADES ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Column records the physical column backing a logical field. Present is
// false when none of the field's candidate names exist in the source.
type Column struct {
	Name    string `json:"name,omitempty"`
	Present bool   `json:"present"`
}

// VolumeKind names the unit of the aggregated volume column.
type VolumeKind string

const (
	VolumeNone   VolumeKind = ""
	VolumeUSD    VolumeKind = "volume_usd"
	VolumeTokens VolumeKind = "volume"
)

// TradeSchema is the result of candidate-name resolution for one trade source.
type TradeSchema struct {
	Account  Column `json:"account"`
	Time     Column `json:"time"`
	PnL      Column `json:"pnl"`
	SizeUSD  Column `json:"size_usd"`
	Size     Column `json:"size"`
	Side     Column `json:"side"`
	Leverage Column `json:"leverage"`
	Fee      Column `json:"fee"`
}

// VolumeKind reports which size column feeds the volume metric. USD notional
// wins over token size; the two are never mixed.
func (s TradeSchema) VolumeKind() VolumeKind {
	switch {
	case s.SizeUSD.Present:
		return VolumeUSD
	case s.Size.Present:
		return VolumeTokens
	default:
		return VolumeNone
	}
}

// HasDate reports whether trades carry a derived date.
func (s TradeSchema) HasDate() bool {
	return s.Time.Present
}

// Trade is one normalized execution. Pointer fields are nil for null cells
// and for columns the source does not carry.
type Trade struct {
	Account  string
	Time     *time.Time
	Date     Date
	PnL      *float64
	SizeUSD  *float64
	Size     *float64
	Side     string
	Leverage *float64
	Fee      *float64
}

// Volume returns the size value feeding the volume metric for kind.
func (t Trade) Volume(kind VolumeKind) *float64 {
	switch kind {
	case VolumeUSD:
		return t.SizeUSD
	case VolumeTokens:
		return t.Size
	default:
		return nil
	}
}

// IsLong reports whether the trade is on the buy/long side.
func (t Trade) IsLong() bool {
	side := strings.ToLower(strings.TrimSpace(t.Side))
	return side == "buy" || side == "long"
}

// TradeTable is a normalized trade source.
type TradeTable struct {
	Source string
	Format string
	Schema TradeSchema
	Trades []Trade
}

// LiveTrade is the output contract of the live feed adapter.
type LiveTrade struct {
	Time        time.Time `json:"time"`
	Side        string    `json:"side"`
	Price       float64   `json:"price"`
	Size        float64   `json:"size"`
	VolumeUSD   float64   `json:"volume_usd"`
	Account     string    `json:"account"`
	TotalPnL    float64   `json:"total_pnl"`
	AvgLeverage float64   `json:"avg_leverage"`
	Date        Date      `json:"date"`
}
