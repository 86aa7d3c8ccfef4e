package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Data       DataConfig       `yaml:"data"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Live       LiveConfig       `yaml:"live"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// DataConfig locates the two raw inputs. Paths may be local files or
// s3://bucket/key URLs.
type DataConfig struct {
	TradesPath    string `yaml:"trades_path"`
	SentimentPath string `yaml:"sentiment_path"`
}

type AnalyticsConfig struct {
	Seed                int     `yaml:"seed"`
	Clusters            int     `yaml:"clusters"`
	TestRatio           float64 `yaml:"test_ratio"`
	Estimators          int     `yaml:"estimators"`
	KMeansRestarts      int     `yaml:"kmeans_restarts"`
	KMeansMaxIterations int     `yaml:"kmeans_max_iterations"`
	MinRegressionRows   int     `yaml:"min_regression_rows"`
	MinClassifierRows   int     `yaml:"min_classifier_rows"`
	RiskFreeRate        float64 `yaml:"risk_free_rate"`
	TargetReturn        float64 `yaml:"target_return"`
	TopTraders          int     `yaml:"top_traders"`
}

type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	LogHistory      int           `yaml:"log_history"`
	MetricsHistory  int           `yaml:"metrics_history"`
	PreviewRows     int           `yaml:"preview_rows"`
}

type LiveConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Symbol            string        `yaml:"symbol"`
	Limit             int           `yaml:"limit"`
	BaseURL           string        `yaml:"base_url"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
	Timeout           time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level          string        `yaml:"level"`
	Format         string        `yaml:"format"`
	Output         string        `yaml:"output"`
	MaxAge         int           `yaml:"max_age"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

// Default returns the configuration used when a field is not set in YAML.
func Default() Config {
	return Config{
		App: AppConfig{Name: "trader-sentiment", Version: "dev"},
		Analytics: AnalyticsConfig{
			Seed:                42,
			Clusters:            3,
			TestRatio:           0.2,
			Estimators:          100,
			KMeansRestarts:      10,
			KMeansMaxIterations: 300,
			MinRegressionRows:   100,
			MinClassifierRows:   50,
			TopTraders:          5,
		},
		Dashboard: DashboardConfig{
			Enabled:         true,
			Address:         ":8080",
			RefreshInterval: 5 * time.Second,
			LogHistory:      200,
			MetricsHistory:  200,
			PreviewRows:     10,
		},
		Live: LiveConfig{
			Symbol:            "BTCUSDT",
			Limit:             50,
			RequestsPerSecond: 5,
			BurstSize:         1,
			Timeout:           10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "json",
			Output:         "stdout",
			ReportInterval: time.Minute,
		},
		CloudWatch: CloudWatchConfig{Namespace: "TraderSentiment", Dashboard: "TraderSentiment"},
	}
}

func LoadConfig(path string) (*Config, error) {
	path = ResolvePath(path)

	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("TRADES_PATH"); v != "" {
		config.Data.TradesPath = strings.TrimSpace(v)
	}
	if v := os.Getenv("SENTIMENT_PATH"); v != "" {
		config.Data.SentimentPath = strings.TrimSpace(v)
	}
	if v := os.Getenv("DASHBOARD_ADDRESS"); v != "" {
		config.Dashboard.Address = strings.TrimSpace(v)
	}
	if v := os.Getenv("LIVE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			config.Live.Enabled = b
		}
	}

	// Override S3 settings from environment variables if available
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		config.Storage.S3.Region = strings.TrimSpace(v)
		if config.CloudWatch.Region == "" {
			config.CloudWatch.Region = config.Storage.S3.Region
		}
	}

	if AppEnvironment().ProductionLike() {
		config.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if cfg.Data.TradesPath == "" {
		return fmt.Errorf("data.trades_path is required")
	}
	if cfg.Data.SentimentPath == "" {
		return fmt.Errorf("data.sentiment_path is required")
	}
	for _, p := range []string{cfg.Data.TradesPath, cfg.Data.SentimentPath} {
		if bucket, ok := s3Bucket(p); ok && !isValidS3Bucket(bucket) {
			return fmt.Errorf("s3 bucket '%s' in '%s' is invalid", bucket, p)
		}
	}

	a := cfg.Analytics
	if a.Clusters <= 0 {
		return fmt.Errorf("analytics.clusters must be greater than 0")
	}
	if a.TestRatio <= 0 || a.TestRatio >= 1 {
		return fmt.Errorf("analytics.test_ratio must be between 0 and 1")
	}
	if a.Estimators <= 0 {
		return fmt.Errorf("analytics.estimators must be greater than 0")
	}
	if a.KMeansRestarts <= 0 {
		return fmt.Errorf("analytics.kmeans_restarts must be greater than 0")
	}
	if a.KMeansMaxIterations <= 0 {
		return fmt.Errorf("analytics.kmeans_max_iterations must be greater than 0")
	}
	if a.MinRegressionRows < 2 || a.MinClassifierRows < 2 {
		return fmt.Errorf("analytics.min_regression_rows and analytics.min_classifier_rows must be at least 2")
	}
	if a.TopTraders <= 0 {
		return fmt.Errorf("analytics.top_traders must be greater than 0")
	}

	if cfg.Dashboard.Enabled && strings.TrimSpace(cfg.Dashboard.Address) == "" {
		return fmt.Errorf("dashboard.address is required when the dashboard is enabled")
	}

	if cfg.Live.Enabled {
		if cfg.Live.Symbol == "" {
			return fmt.Errorf("live.symbol is required when the live feed is enabled")
		}
		if cfg.Live.Limit <= 0 || cfg.Live.Limit > 1000 {
			return fmt.Errorf("live.limit must be between 1 and 1000")
		}
		if cfg.Live.RequestsPerSecond <= 0 {
			return fmt.Errorf("live.requests_per_second must be greater than 0")
		}
		if cfg.Live.BurstSize <= 0 {
			return fmt.Errorf("live.burst_size must be greater than 0")
		}
		if cfg.Live.Timeout <= 0 {
			return fmt.Errorf("live.timeout must be greater than 0")
		}
	}

	s3 := cfg.Storage.S3
	if (s3.AccessKeyID == "") != (s3.SecretAccessKey == "") {
		return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key must be set together")
	}

	if cfg.CloudWatch.Enabled && cfg.CloudWatch.Namespace == "" {
		return fmt.Errorf("cloudwatch.namespace is required when CloudWatch is enabled")
	}

	return nil
}

func s3Bucket(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "s3://")
	if !ok {
		return "", false
	}
	bucket, _, _ := strings.Cut(rest, "/")
	return bucket, true
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
