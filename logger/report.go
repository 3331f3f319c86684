package logger

import (
	"context"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"                              //cloudwatch
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types" //cloudwatch
)

// Run-wide counters for the periodic and final reports. Extractors, the
// orchestrator and the writers feed these through the Increment helpers.
var (
	daysProcessed   int64
	marketDays      int64
	marketDayErrors int64
	rowsProduced    int64
	filesWritten    int64
	bytesWritten    int64
	extractWarns    int64
	writerErrors    int64
)

func recordWarn(component string) {
	if strings.Contains(component, "extract") || strings.Contains(component, "reader") {
		atomic.AddInt64(&extractWarns, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "writer") {
		atomic.AddInt64(&writerErrors, 1)
	}
}

// IncrementDayProcessed records one fully processed calendar date.
func IncrementDayProcessed() {
	atomic.AddInt64(&daysProcessed, 1)
}

// IncrementMarketDay records one processed (market, date) unit.
func IncrementMarketDay() {
	atomic.AddInt64(&marketDays, 1)
}

// IncrementMarketDayError records a (market, date) unit that was recovered
// and contributed no rows.
func IncrementMarketDayError() {
	atomic.AddInt64(&marketDayErrors, 1)
}

// IncrementRows records result rows produced by aggregation.
func IncrementRows(n int) {
	atomic.AddInt64(&rowsProduced, int64(n))
}

// IncrementFileWritten records one output file and its size.
func IncrementFileWritten(size int64) {
	atomic.AddInt64(&filesWritten, 1)
	atomic.AddInt64(&bytesWritten, size)
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

// StartReport begins periodic logging of run progress and system statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

// FinalReport logs the end-of-run summary once and publishes the counters.
func FinalReport(ctx context.Context, log *Log, elapsed time.Duration) {
	logReport(ctx, log)
	log.WithComponent("report").WithFields(Fields{
		"elapsed_s":         elapsed.Seconds(),
		"days_processed":    atomic.LoadInt64(&daysProcessed),
		"market_day_errors": atomic.LoadInt64(&marketDayErrors),
		"rows_produced":     atomic.LoadInt64(&rowsProduced),
		"files_written":     atomic.LoadInt64(&filesWritten),
	}).Info("run completed")
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	memMB := int64(0)
	if memStats != nil {
		memMB = int64(memStats.Used) / 1024 / 1024
	}

	fields := Fields{
		"days_processed":    atomic.LoadInt64(&daysProcessed),
		"market_days":       atomic.LoadInt64(&marketDays),
		"market_day_errors": atomic.LoadInt64(&marketDayErrors),
		"rows_produced":     atomic.LoadInt64(&rowsProduced),
		"files_written":     atomic.LoadInt64(&filesWritten),
		"bytes_written":     atomic.LoadInt64(&bytesWritten),
		"extract_warns":     atomic.LoadInt64(&extractWarns),
		"writer_errors":     atomic.LoadInt64(&writerErrors),
		"goroutines":        runtime.NumGoroutine(),
		"cpu_percent":       cpuPct,
		"memory_mb":         memMB,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("DaysProcessed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&daysProcessed)))},
		{MetricName: aws.String("MarketDays"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&marketDays)))},
		{MetricName: aws.String("MarketDayErrors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&marketDayErrors)))},
		{MetricName: aws.String("RowsProduced"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&rowsProduced)))},
		{MetricName: aws.String("FilesWritten"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&filesWritten)))},
		{MetricName: aws.String("BytesWritten"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(atomic.LoadInt64(&bytesWritten)))},
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memMB))},
	}

	publishMetrics(ctx, data)
}
