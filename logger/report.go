package logger

import (
	"context"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type stageStat struct {
	batches int64
	rows    int64
}

var (
	errorsLoad     int64
	errorsAnalysis int64
	warnsLoad      int64
	warnsAnalysis  int64
	pipelineRuns   int64
	pipelineFails  int64
	liveFetches    int64
	stages         sync.Map // map[string]*stageStat
)

func isLoadComponent(component string) bool {
	return strings.Contains(component, "reader") || strings.Contains(component, "loader")
}

func recordWarn(component string) {
	if isLoadComponent(component) {
		atomic.AddInt64(&warnsLoad, 1)
	} else if strings.Contains(component, "analytics") {
		atomic.AddInt64(&warnsAnalysis, 1)
	}
}

func recordError(component string) {
	if isLoadComponent(component) {
		atomic.AddInt64(&errorsLoad, 1)
	} else if strings.Contains(component, "analytics") {
		atomic.AddInt64(&errorsAnalysis, 1)
	}
}

// IncrementPipelineRun counts a panel build and whether it failed.
func IncrementPipelineRun(failed bool) {
	atomic.AddInt64(&pipelineRuns, 1)
	if failed {
		atomic.AddInt64(&pipelineFails, 1)
	}
}

func IncrementLiveFetch(rows int) {
	atomic.AddInt64(&liveFetches, 1)
	RecordStageRows("live_feed", rows)
}

// RecordStageRows accumulates rows produced by a named pipeline stage.
func RecordStageRows(name string, rows int) {
	v, _ := stages.LoadOrStore(name, &stageStat{})
	st := v.(*stageStat)
	atomic.AddInt64(&st.batches, 1)
	atomic.AddInt64(&st.rows, int64(rows))
}

// Snapshot returns the current report counters.
func Snapshot() Fields {
	stageData := map[string]map[string]int64{}
	stages.Range(func(k, v any) bool {
		st := v.(*stageStat)
		stageData[k.(string)] = map[string]int64{
			"batches": atomic.LoadInt64(&st.batches),
			"rows":    atomic.LoadInt64(&st.rows),
		}
		return true
	})

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return Fields{
		"errors_load":       atomic.LoadInt64(&errorsLoad),
		"errors_analysis":   atomic.LoadInt64(&errorsAnalysis),
		"warns_load":        atomic.LoadInt64(&warnsLoad),
		"warns_analysis":    atomic.LoadInt64(&warnsAnalysis),
		"pipeline_runs":     atomic.LoadInt64(&pipelineRuns),
		"pipeline_failures": atomic.LoadInt64(&pipelineFails),
		"live_fetches":      atomic.LoadInt64(&liveFetches),
		"goroutines":        runtime.NumGoroutine(),
		"heap_mb":           int64(mem.HeapAlloc) / 1024 / 1024,
		"stages":            stageData,
	}
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of pipeline statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	fields := Snapshot()
	log.WithComponent("report").WithFields(fields).Info("runtime report")

	count := func(name string, key string) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(fields[key].(int64))),
		}
	}

	data := []cwtypes.MetricDatum{
		count("ErrorsLoad", "errors_load"),
		count("ErrorsAnalysis", "errors_analysis"),
		count("WarnsLoad", "warns_load"),
		count("WarnsAnalysis", "warns_analysis"),
		count("PipelineRuns", "pipeline_runs"),
		count("PipelineFailures", "pipeline_failures"),
		count("LiveFetches", "live_fetches"),
	}

	stageData := fields["stages"].(map[string]map[string]int64)
	names := make([]string, 0, len(stageData))
	for name := range stageData {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("StageRows"),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Stage"), Value: aws.String(name)}},
			Value:      aws.Float64(float64(stageData[name]["rows"])),
		})
	}

	publishMetrics(ctx, data)
}
