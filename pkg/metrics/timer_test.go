package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TestNewTimer tests timer creation
func TestNewTimer(t *testing.T) {
	timer := NewTimer()

	if timer == nil {
		t.Fatal("NewTimer() returned nil")
	}

	if timer.Start().IsZero() {
		t.Error("NewTimer() start time is zero")
	}

	if time.Since(timer.Start()) > time.Second {
		t.Error("NewTimer() start time is not recent")
	}
}

// TestTimerDuration tests elapsed time measurement
func TestTimerDuration(t *testing.T) {
	timer := NewTimer()

	time.Sleep(10 * time.Millisecond)

	d := timer.Duration()
	if d < 10*time.Millisecond {
		t.Errorf("Duration() = %v, want at least 10ms", d)
	}
	if d > time.Second {
		t.Errorf("Duration() = %v, unexpectedly long", d)
	}
}

// TestTimerObserveDuration tests recording into a histogram
func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_timer_observe_seconds",
		Help: "test histogram",
	})

	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDuration(histogram)

	metric := &dto.Metric{}
	if err := histogram.Write(metric); err != nil {
		t.Fatalf("failed to collect histogram: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 1 {
		t.Errorf("histogram sample count = %d, want 1", metric.Histogram.GetSampleCount())
	}
	if metric.Histogram.GetSampleSum() <= 0 {
		t.Errorf("histogram sample sum = %f, want > 0", metric.Histogram.GetSampleSum())
	}
}
