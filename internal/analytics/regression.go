package analytics

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"tradersentiment/internal/forest"
	"tradersentiment/models"
)

// RegressionReport summarizes the held-out fit of the PnL model.
type RegressionReport struct {
	Model       string              `json:"model"`
	MSE         float64             `json:"mse"`
	R2          float64             `json:"r2"`
	Importances []FeatureImportance `json:"feature_importances"`
	TrainRows   int                 `json:"train_rows"`
	TestRows    int                 `json:"test_rows"`
}

// PredictPnL fits a random forest regressor of daily PnL on sentiment score,
// volume and trade count, holding out opts.TestRatio of the complete rows.
func PredictPnL(panel *models.Panel, opts Options) (*RegressionReport, error) {
	opts = opts.withDefaults()
	features := []string{"sentiment_score", string(panel.Columns.Volume), "trades"}

	var X [][]float64
	var y []float64
	if panel.Columns.Sentiment && panel.Columns.PnL && panel.Columns.Volume != models.VolumeNone {
		for _, r := range panel.Rows {
			if r.SentimentScore == nil || r.Volume == nil || r.TotalPnL == nil {
				continue
			}
			X = append(X, []float64{float64(*r.SentimentScore), *r.Volume, float64(r.Trades)})
			y = append(y, *r.TotalPnL)
		}
	}
	if len(X) < opts.MinRegressionRows {
		return nil, &models.InsufficientDataError{Operation: "pnl regression", Have: len(X), Need: opts.MinRegressionRows}
	}

	train, test := trainTestSplit(len(X), opts.TestRatio, opts.Seed)
	model := forest.NewRegressor(forest.Config{Trees: opts.Estimators, Seed: opts.Seed})
	if err := model.Fit(pick(X, train), pickFloat(y, train)); err != nil {
		return nil, fmt.Errorf("fit regressor: %w", err)
	}
	pred, err := model.Predict(pick(X, test))
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	actual := pickFloat(y, test)

	return &RegressionReport{
		Model:       model.Task().String(),
		MSE:         meanSquaredError(pred, actual),
		R2:          rSquared(pred, actual),
		Importances: importances(features, model.FeatureImportances()),
		TrainRows:   len(train),
		TestRows:    len(test),
	}, nil
}

// trainTestSplit shuffles 0..n-1 with seed and returns the train and test
// index sets. The test side holds ceil(ratio*n) rows and at least one row of
// each side survives.
func trainTestSplit(n int, ratio float64, seed int64) ([]int, []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(math.Ceil(ratio * float64(n)))
	if nTest < 1 {
		nTest = 1
	}
	if nTest > n-1 {
		nTest = n - 1
	}
	return perm[nTest:], perm[:nTest]
}

func pick(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func pickFloat(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}

func meanSquaredError(pred, actual []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	total := 0.0
	for i := range actual {
		d := pred[i] - actual[i]
		total += d * d
	}
	return total / float64(len(actual))
}

// rSquared is the coefficient of determination. A constant target scores 1
// when predicted exactly and 0 otherwise.
func rSquared(pred, actual []float64) float64 {
	if len(actual) < 2 || stat.Variance(actual, nil) == 0 {
		if meanSquaredError(pred, actual) == 0 {
			return 1
		}
		return 0
	}
	return sanitize(stat.RSquaredFrom(pred, actual, nil))
}

func importances(names []string, values []float64) []FeatureImportance {
	out := make([]FeatureImportance, len(names))
	for i, name := range names {
		out[i] = FeatureImportance{Feature: name}
		if i < len(values) {
			out[i].Importance = values[i]
		}
	}
	return out
}
