package models

import "strings"

// Sentiment is one of the five fear/greed classifications.
type Sentiment string

const (
	ExtremeFear  Sentiment = "extreme fear"
	Fear         Sentiment = "fear"
	Neutral      Sentiment = "neutral"
	Greed        Sentiment = "greed"
	ExtremeGreed Sentiment = "extreme greed"
)

// Sentiments lists the classifications from most fearful to most greedy.
var Sentiments = []Sentiment{ExtremeFear, Fear, Neutral, Greed, ExtremeGreed}

var sentimentScores = map[Sentiment]int{
	ExtremeFear:  0,
	Fear:         1,
	Neutral:      2,
	Greed:        3,
	ExtremeGreed: 4,
}

// ParseSentiment trims and lower-cases s and reports whether it names one of
// the five classifications.
func ParseSentiment(s string) (Sentiment, bool) {
	v := Sentiment(strings.Join(strings.Fields(strings.ToLower(s)), " "))
	_, ok := sentimentScores[v]
	return v, ok
}

// Score returns the ordinal encoding of s.
func (s Sentiment) Score() (int, bool) {
	v, ok := sentimentScores[s]
	return v, ok
}

// SentimentRecord is one day of the sentiment index. Classification is nil
// when the cell is empty or not one of the five labels.
type SentimentRecord struct {
	Date           Date
	Classification *Sentiment
}

// SentimentTable is a normalized sentiment source. HasDate and
// HasClassification record whether the source carried those columns.
type SentimentTable struct {
	Source            string
	HasDate           bool
	HasClassification bool
	Records           []SentimentRecord
}

// ByDate indexes classifications by day, skipping records without a date.
func (t *SentimentTable) ByDate() map[Date]*Sentiment {
	out := make(map[Date]*Sentiment, len(t.Records))
	for _, r := range t.Records {
		if !r.Date.Valid() {
			continue
		}
		if _, seen := out[r.Date]; seen {
			continue
		}
		out[r.Date] = r.Classification
	}
	return out
}
