package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	// PutMetricData accepts at most this many datums per call.
	maxDatumsPerCall = 1000
	maxDimensions    = 30
)

// MetricAPI is the subset of the CloudWatch client used for publishing.
type MetricAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
	PutDashboard(ctx context.Context, in *cloudwatch.PutDashboardInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutDashboardOutput, error)
}

type cloudWatchSink struct {
	mu        sync.RWMutex
	api       MetricAPI
	namespace string
	dashboard string
}

var cw = &cloudWatchSink{namespace: "TraderSentiment", dashboard: "TraderSentiment"}

// InitCloudWatch creates the CloudWatch client for region (AWS_REGION when
// empty) and publishes the default dashboard. On failure publishing stays
// disabled and the error is returned for the caller to log.
func InitCloudWatch(ctx context.Context, region, namespace, dashboard string) error {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load AWS configuration: %w", err)
	}

	UseCloudWatch(cloudwatch.NewFromConfig(cfg), namespace, dashboard)
	GetLogger().WithComponent("cloudwatch").WithFields(Fields{
		"region":    region,
		"namespace": cw.currentNamespace(),
	}).Info("initialized CloudWatch client")

	return CreateDefaultDashboard(ctx)
}

// UseCloudWatch installs api as the metric sink. A nil api disables
// publishing.
func UseCloudWatch(api MetricAPI, namespace, dashboard string) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.api = api
	if namespace != "" {
		cw.namespace = namespace
	}
	if dashboard != "" {
		cw.dashboard = dashboard
	}
}

func (s *cloudWatchSink) currentNamespace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namespace
}

func (s *cloudWatchSink) snapshot() (MetricAPI, string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.api, s.namespace, s.dashboard
}

// publishMetrics sends data in chunks the API accepts. Datums without a
// finite value are dropped since CloudWatch rejects NaN and Inf.
func publishMetrics(ctx context.Context, data []cwtypes.MetricDatum) {
	api, namespace, _ := cw.snapshot()
	if api == nil {
		return
	}

	valid := data[:0:0]
	for _, d := range data {
		if d.Value != nil && (math.IsNaN(*d.Value) || math.IsInf(*d.Value, 0)) {
			continue
		}
		valid = append(valid, d)
	}
	if len(valid) == 0 {
		return
	}

	log := GetLogger().WithComponent("cloudwatch")
	for start := 0; start < len(valid); start += maxDatumsPerCall {
		end := start + maxDatumsPerCall
		if end > len(valid) {
			end = len(valid)
		}
		chunk := valid[start:end]
		if _, err := api.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(namespace),
			MetricData: chunk,
		}); err != nil {
			log.WithError(err).Warn("failed to publish CloudWatch metrics")
			return
		}

		names := make([]string, 0, len(chunk))
		for _, d := range chunk {
			names = append(names, aws.ToString(d.MetricName))
		}
		log.WithFields(Fields{"metrics": strings.Join(names, ",")}).Debug("published metrics to CloudWatch")
	}
}

// metricDatum builds a datum dimensioned by component and by every string
// field, in key order, up to the CloudWatch dimension limit.
func metricDatum(component, metric, metricType string, value float64, fields Fields) cwtypes.MetricDatum {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if _, ok := v.(string); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(component)}}
	for _, k := range keys {
		if len(dims) == maxDimensions {
			break
		}
		dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(fields[k].(string))})
	}

	unit := cwtypes.StandardUnitCount
	if metricType == "duration" {
		unit = cwtypes.StandardUnitMilliseconds
	}
	return cwtypes.MetricDatum{
		MetricName: aws.String(metric),
		Dimensions: dims,
		Unit:       unit,
		Value:      aws.Float64(value),
	}
}

type dashboardBody struct {
	Widgets []dashboardWidget `json:"widgets"`
}

type dashboardWidget struct {
	Type       string         `json:"type"`
	X          int            `json:"x"`
	Y          int            `json:"y"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Properties widgetProperty `json:"properties"`
}

type widgetProperty struct {
	Metrics [][]string `json:"metrics"`
	Period  int        `json:"period"`
	Stat    string     `json:"stat"`
	Title   string     `json:"title"`
	View    string     `json:"view"`
}

func metricWidget(namespace, title string, y int, names ...string) dashboardWidget {
	rows := make([][]string, 0, len(names))
	for _, n := range names {
		rows = append(rows, []string{namespace, n})
	}
	return dashboardWidget{
		Type:   "metric",
		Y:      y,
		Width:  24,
		Height: 6,
		Properties: widgetProperty{
			Metrics: rows,
			Period:  300,
			Stat:    "Maximum",
			Title:   title,
			View:    "timeSeries",
		},
	}
}

func defaultDashboardBody(namespace string) (string, error) {
	body := dashboardBody{Widgets: []dashboardWidget{
		metricWidget(namespace, "Panel builds", 0, "PipelineRuns", "PipelineFailures"),
		metricWidget(namespace, "Load and analysis problems", 6, "ErrorsLoad", "ErrorsAnalysis", "WarnsLoad", "WarnsAnalysis"),
		metricWidget(namespace, "Live feed", 12, "LiveFetches"),
	}}
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CreateDefaultDashboard writes the pipeline dashboard. It is a no-op while
// publishing is disabled.
func CreateDefaultDashboard(ctx context.Context) error {
	api, namespace, dashboard := cw.snapshot()
	if api == nil {
		return nil
	}

	body, err := defaultDashboardBody(namespace)
	if err != nil {
		return fmt.Errorf("encode dashboard: %w", err)
	}
	if _, err := api.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(dashboard),
		DashboardBody: aws.String(body),
	}); err != nil {
		return fmt.Errorf("put dashboard %s: %w", dashboard, err)
	}
	return nil
}
