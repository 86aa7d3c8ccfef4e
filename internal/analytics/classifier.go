package analytics

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"tradersentiment/internal/forest"
	"tradersentiment/models"
)

// WinFeatureRow is one account-day with lagged inputs and the next-day
// outcome. NextDayWin is nil on an account's last day or when the next
// day's PnL is null.
type WinFeatureRow struct {
	Account        string      `json:"account"`
	Date           models.Date `json:"date"`
	SentimentScore *float64    `json:"sentiment_score"`
	PrevSentiment  *float64    `json:"prev_sentiment"`
	Volume         *float64    `json:"volume"`
	AvgLeverage    *float64    `json:"avg_leverage,omitempty"`
	PrevLeverage   *float64    `json:"prev_leverage,omitempty"`
	NextDayWin     *int        `json:"next_day_win"`
}

// WinFeatures is the derived table for the next-day win classifier.
type WinFeatures struct {
	Features []string        `json:"features"`
	Rows     []WinFeatureRow `json:"rows"`
}

// WinFeatureTable derives per-account lagged features in date order.
func WinFeatureTable(panel *models.Panel) *WinFeatures {
	volume := string(panel.Columns.Volume)
	if volume == "" {
		volume = string(models.VolumeTokens)
	}
	features := []string{"sentiment_score", "prev_sentiment", volume}
	if panel.Columns.Leverage {
		features = append(features, "avg_leverage", "prev_leverage")
	}

	// Rows without a known day have no neighbours to lag against.
	idx := make([]int, 0, panel.Len())
	for i, r := range panel.Rows {
		if r.Date.Valid() {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := panel.Rows[idx[a]], panel.Rows[idx[b]]
		if ra.Account != rb.Account {
			return ra.Account < rb.Account
		}
		return ra.Date < rb.Date
	})

	rows := make([]WinFeatureRow, len(idx))
	for k, i := range idx {
		r := panel.Rows[i]
		row := WinFeatureRow{Account: r.Account, Date: r.Date, Volume: r.Volume}
		if r.SentimentScore != nil {
			row.SentimentScore = models.Float(float64(*r.SentimentScore))
		}
		if panel.Columns.Leverage {
			row.AvgLeverage = r.AvgLeverage
		}
		if k > 0 && rows[k-1].Account == r.Account {
			row.PrevSentiment = rows[k-1].SentimentScore
			row.PrevLeverage = rows[k-1].AvgLeverage
		}
		if k+1 < len(idx) {
			next := panel.Rows[idx[k+1]]
			if next.Account == r.Account && next.TotalPnL != nil {
				win := 0
				if *next.TotalPnL > 0 {
					win = 1
				}
				row.NextDayWin = &win
			}
		}
		rows[k] = row
	}
	return &WinFeatures{Features: features, Rows: rows}
}

// vector returns the row's inputs in Features order and whether every one
// and the label are present.
func (r WinFeatureRow) vector(withLeverage bool) ([]float64, bool) {
	cells := []*float64{r.SentimentScore, r.PrevSentiment, r.Volume}
	if withLeverage {
		cells = append(cells, r.AvgLeverage, r.PrevLeverage)
	}
	out := make([]float64, len(cells))
	for i, c := range cells {
		if c == nil {
			return nil, false
		}
		out[i] = *c
	}
	return out, r.NextDayWin != nil
}

// ClassifierReport summarizes the held-out fit of the win model. AUC is nil
// when the test split holds a single class.
type ClassifierReport struct {
	Model        string              `json:"model"`
	Accuracy     float64             `json:"accuracy"`
	AUC          *float64            `json:"auc"`
	Importances  []FeatureImportance `json:"feature_importances"`
	TrainRows    int                 `json:"train_rows"`
	TestRows     int                 `json:"test_rows"`
	PositiveRate float64             `json:"positive_rate"`
}

// PredictWinProbability fits a random forest classifier of next-day wins on
// the complete rows of WinFeatureTable.
func PredictWinProbability(panel *models.Panel, opts Options) (*ClassifierReport, error) {
	opts = opts.withDefaults()
	table := WinFeatureTable(panel)

	var X [][]float64
	var y []float64
	positives := 0
	if panel.Columns.Volume != models.VolumeNone {
		for _, r := range table.Rows {
			x, ok := r.vector(panel.Columns.Leverage)
			if !ok {
				continue
			}
			X = append(X, x)
			y = append(y, float64(*r.NextDayWin))
			positives += *r.NextDayWin
		}
	}
	if len(X) < opts.MinClassifierRows {
		return nil, &models.InsufficientDataError{Operation: "win classification", Have: len(X), Need: opts.MinClassifierRows}
	}

	train, test := trainTestSplit(len(X), opts.TestRatio, opts.Seed)
	model := forest.NewClassifier(forest.Config{Trees: opts.Estimators, Seed: opts.Seed})
	if err := model.Fit(pick(X, train), pickFloat(y, train)); err != nil {
		return nil, fmt.Errorf("fit classifier: %w", err)
	}
	testX, actual := pick(X, test), pickFloat(y, test)
	pred, err := model.Predict(testX)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	proba, err := model.PredictProba(testX)
	if err != nil {
		return nil, fmt.Errorf("predict proba: %w", err)
	}

	correct := 0
	for i := range actual {
		if pred[i] == actual[i] {
			correct++
		}
	}
	return &ClassifierReport{
		Model:        model.Task().String(),
		Accuracy:     float64(correct) / float64(len(actual)),
		AUC:          rocAUC(positiveScores(model.Classes(), proba), actual),
		Importances:  importances(table.Features, model.FeatureImportances()),
		TrainRows:    len(train),
		TestRows:     len(test),
		PositiveRate: float64(positives) / float64(len(X)),
	}, nil
}

// positiveScores extracts the probability of label 1 from PredictProba
// output. A model trained on one class scores 0 or 1 throughout.
func positiveScores(classes []float64, proba [][]float64) []float64 {
	col := -1
	for i, c := range classes {
		if c == 1 {
			col = i
		}
	}
	out := make([]float64, len(proba))
	for i, p := range proba {
		if col >= 0 {
			out[i] = p[col]
		}
	}
	return out
}

// rocAUC integrates the ROC curve of scores against binary labels.
func rocAUC(scores, labels []float64) *float64 {
	hasPos, hasNeg := false, false
	for _, l := range labels {
		if l == 1 {
			hasPos = true
		} else {
			hasNeg = true
		}
	}
	if !hasPos || !hasNeg {
		return nil
	}

	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })
	y := make([]float64, len(idx))
	classes := make([]bool, len(idx))
	for i, j := range idx {
		y[i] = scores[j]
		classes[i] = labels[j] == 1
	}
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	auc := integrate.Trapezoidal(fpr, tpr)
	return &auc
}
