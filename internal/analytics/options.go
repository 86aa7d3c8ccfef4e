// Package analytics derives descriptive statistics and predictive models from
// a joined sentiment panel. Every function is a pure computation over its
// inputs; randomness comes only from Options.Seed.
package analytics

import (
	"math"

	appconfig "tradersentiment/config"
)

// Options carries the knobs shared by the analytics functions.
type Options struct {
	Seed                int64
	Clusters            int
	TestRatio           float64
	Estimators          int
	KMeansRestarts      int
	KMeansMaxIterations int
	MinRegressionRows   int
	MinClassifierRows   int
	RiskFreeRate        float64
	TargetReturn        float64
	TopTraders          int
}

func DefaultOptions() Options {
	return Options{
		Seed:                42,
		Clusters:            3,
		TestRatio:           0.2,
		Estimators:          100,
		KMeansRestarts:      10,
		KMeansMaxIterations: 300,
		MinRegressionRows:   100,
		MinClassifierRows:   50,
		TopTraders:          5,
	}
}

// OptionsFromConfig maps the analytics section of the service config.
func OptionsFromConfig(cfg appconfig.AnalyticsConfig) Options {
	return Options{
		Seed:                int64(cfg.Seed),
		Clusters:            cfg.Clusters,
		TestRatio:           cfg.TestRatio,
		Estimators:          cfg.Estimators,
		KMeansRestarts:      cfg.KMeansRestarts,
		KMeansMaxIterations: cfg.KMeansMaxIterations,
		MinRegressionRows:   cfg.MinRegressionRows,
		MinClassifierRows:   cfg.MinClassifierRows,
		RiskFreeRate:        cfg.RiskFreeRate,
		TargetReturn:        cfg.TargetReturn,
		TopTraders:          cfg.TopTraders,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Clusters <= 0 {
		o.Clusters = d.Clusters
	}
	if o.TestRatio <= 0 || o.TestRatio >= 1 {
		o.TestRatio = d.TestRatio
	}
	if o.Estimators <= 0 {
		o.Estimators = d.Estimators
	}
	if o.KMeansRestarts <= 0 {
		o.KMeansRestarts = d.KMeansRestarts
	}
	if o.KMeansMaxIterations <= 0 {
		o.KMeansMaxIterations = d.KMeansMaxIterations
	}
	if o.MinRegressionRows <= 0 {
		o.MinRegressionRows = d.MinRegressionRows
	}
	if o.MinClassifierRows <= 0 {
		o.MinClassifierRows = d.MinClassifierRows
	}
	if o.TopTraders <= 0 {
		o.TopTraders = d.TopTraders
	}
	return o
}

// FeatureImportance pairs a model input with its share of impurity decrease.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

func numeric(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
