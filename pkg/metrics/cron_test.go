package metrics

import (
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronRunsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	at := time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)

	m.ObserveRun("ledger-daily-report", CronSucceeded, 2*time.Second, at)
	m.ObserveRun("ledger-daily-report", CronFailed, time.Second, at.Add(time.Hour))
	m.ObserveRun("ledger-daily-report", CronSkipped, 0, at.Add(2*time.Hour))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, outcome := range []string{CronSucceeded, CronFailed, CronSkipped} {
		got, err := counterValue(mfs, "walletcore_cron_runs_total", map[string]string{"job": "ledger-daily-report", "outcome": outcome})
		if err != nil || got != 1 {
			t.Fatalf("outcome %s: got %v err %v", outcome, got, err)
		}
	}

	hist := findMetricFamily(mfs, "walletcore_cron_run_duration_seconds").GetMetric()[0].GetHistogram()
	if hist.GetSampleCount() != 2 || hist.GetSampleSum() != 3 {
		t.Fatalf("skipped runs must not be timed: count=%d sum=%f", hist.GetSampleCount(), hist.GetSampleSum())
	}
	gauge := findMetricFamily(mfs, "walletcore_cron_last_success_timestamp_seconds").GetMetric()[0].GetGauge()
	if gauge.GetValue() != float64(at.Unix()) {
		t.Fatalf("last success should stay at the successful run, got %f", gauge.GetValue())
	}
}

func TestNilCronMetricsAreSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("x", CronFailed, time.Second, time.Now())
	NewCronJobMetrics(nil).ObserveRun("x", CronSucceeded, time.Second, time.Now())
}

func TestHandlerServesTextFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCronJobMetrics(reg).ObserveRun("audit-archive", CronSucceeded, time.Second, time.Now())

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `walletcore_cron_runs_total{job="audit-archive",outcome="succeeded"} 1`) {
		t.Fatalf("unexpected exposition:\n%s", body)
	}
}

func counterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if hasLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q has no series %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func hasLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; ok && v == p.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	return counterValue(mfs, name, map[string]string{label: value})
}
