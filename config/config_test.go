package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTempConfig writes content to a temporary YAML file and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

const minimalConfig = `app:
  name: "TestApp"
  version: "1.0"
data:
  trades_path: "testdata/trades.csv"
  sentiment_path: "testdata/sentiment.csv"
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"TRADES_PATH", "SENTIMENT_PATH", "DASHBOARD_ADDRESS", "LIVE_ENABLED",
		"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_REGION", "APP_ENV"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.App.Name)
	}
	if cfg.Analytics.Seed != 42 || cfg.Analytics.Clusters != 3 || cfg.Analytics.Estimators != 100 {
		t.Errorf("analytics defaults not applied: %+v", cfg.Analytics)
	}
	if cfg.Dashboard.Address != ":8080" {
		t.Errorf("unexpected dashboard address: %s", cfg.Dashboard.Address)
	}
	if cfg.Live.Timeout != 10*time.Second {
		t.Errorf("unexpected live timeout: %v", cfg.Live.Timeout)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRADES_PATH", "s3://trade-bucket/raw/trades.csv")
	t.Setenv("DASHBOARD_ADDRESS", "127.0.0.1:9000")
	t.Setenv("AWS_REGION", "eu-west-1")

	cfg, err := LoadConfig(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Data.TradesPath != "s3://trade-bucket/raw/trades.csv" {
		t.Errorf("trades path not overridden: %s", cfg.Data.TradesPath)
	}
	if cfg.Dashboard.Address != "127.0.0.1:9000" {
		t.Errorf("dashboard address not overridden: %s", cfg.Dashboard.Address)
	}
	if cfg.Storage.S3.Region != "eu-west-1" || cfg.CloudWatch.Region != "eu-west-1" {
		t.Errorf("region not overridden: %+v %+v", cfg.Storage.S3, cfg.CloudWatch)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	clearEnv(t)
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"missing trades", "app:\n  name: x\ndata:\n  sentiment_path: s.csv\n", "data.trades_path is required"},
		{"bad ratio", minimalConfig + "analytics:\n  test_ratio: 1.5\n", "analytics.test_ratio"},
		{"bad bucket", "app:\n  name: x\ndata:\n  trades_path: s3://Bad_Bucket/t.csv\n  sentiment_path: s.csv\n", "is invalid"},
		{"live limit", minimalConfig + "live:\n  enabled: true\n  limit: 5000\n", "live.limit"},
		{"half credentials", minimalConfig + "storage:\n  s3:\n    access_key_id: abc\n", "must be set together"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := LoadConfig(writeTempConfig(t, c.content))
			if err == nil {
				t.Fatalf("expected error containing %q", c.want)
			}
			if !strings.Contains(err.Error(), c.want) {
				t.Fatalf("error %q does not contain %q", err, c.want)
			}
		})
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}

func TestResolveEnvSpecificPath(t *testing.T) {
	present := func(want string) func(string) bool {
		return func(p string) bool { return p == want }
	}
	prodFile := "config/config.production.yml"

	tests := []struct {
		name   string
		path   string
		env    Environment
		exists func(string) bool
		want   string
	}{
		{name: "default swapped", path: "", env: Production, exists: present(prodFile), want: prodFile},
		{name: "explicit default swapped", path: DefaultPath, env: Production, exists: present(prodFile), want: prodFile},
		{name: "explicit path wins", path: "custom.yml", env: Production, exists: present(prodFile), want: "custom.yml"},
		{name: "missing env file", path: "", env: Staging, exists: present(prodFile), want: DefaultPath},
		{name: "development", path: "", env: Development, exists: present(prodFile), want: DefaultPath},
	}
	for _, tt := range tests {
		if got := resolveEnvSpecificPath(tt.path, tt.env, tt.exists); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		in             string
		want           Environment
		productionLike bool
	}{
		{"", Development, false},
		{"dev", Development, false},
		{" PROD ", Production, true},
		{"stagging", Staging, true},
		{"qa", Environment("qa"), false},
	}
	for _, tt := range tests {
		got := ParseEnvironment(tt.in)
		if got != tt.want || got.ProductionLike() != tt.productionLike {
			t.Errorf("ParseEnvironment(%q) = %s (production-like %v)", tt.in, got, got.ProductionLike())
		}
	}

	t.Setenv("APP_ENV", "")
	if AppEnvironment() != Development {
		t.Errorf("empty APP_ENV should be development")
	}
}

func TestProductionForcesJSONLogging(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	cfg := Default()
	cfg.Logging.Format = "text"
	applyEnvOverrides(&cfg)
	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %s, want json", cfg.Logging.Format)
	}
}
