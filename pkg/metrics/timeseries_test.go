package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/prometheus/prompb"

	"github.com/mjasion/balena-home/coned_rtu/reading"
)

func labelValue(labels []prompb.Label, name string) string {
	for _, l := range labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func TestIntervalBuilder(t *testing.T) {
	build := NewIntervalBuilder("acct-1", "meter-9")

	// out of order on purpose
	readings := []reading.Reading{quarterHour(t, 1, 121.5), quarterHour(t, 0, 110.5)}
	series, err := build(context.Background(), readings)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("Expected 2 time series, got %d", len(series))
	}

	energy, duration := series[0], series[1]
	if got := labelValue(energy.Labels, "__name__"); got != EnergyMetricName {
		t.Errorf("Expected %s, got %s", EnergyMetricName, got)
	}
	if got := labelValue(duration.Labels, "__name__"); got != DurationMetricName {
		t.Errorf("Expected %s, got %s", DurationMetricName, got)
	}
	if labelValue(energy.Labels, "account_id") != "acct-1" || labelValue(energy.Labels, "meter") != "meter-9" {
		t.Errorf("Unexpected labels: %v", energy.Labels)
	}

	wantTs := []int64{readings[1].End().UnixMilli(), readings[0].End().UnixMilli()}
	for i, s := range energy.Samples {
		if s.Timestamp != wantTs[i] {
			t.Errorf("Sample %d: expected timestamp %d, got %d", i, wantTs[i], s.Timestamp)
		}
	}
	if energy.Samples[0].Value != 110.5 || energy.Samples[1].Value != 121.5 {
		t.Errorf("Unexpected energy samples: %v", energy.Samples)
	}
	for _, s := range duration.Samples {
		if s.Value != 900 {
			t.Errorf("Expected 900 second interval, got %v", s.Value)
		}
	}

	// the caller's slice is untouched
	if !readings[0].Equal(quarterHour(t, 1, 121.5)) {
		t.Error("Expected builder not to reorder its input")
	}
}

func TestIntervalBuilder_Empty(t *testing.T) {
	series, err := NewIntervalBuilder("a", "m")(context.Background(), nil)
	if err != nil || series != nil {
		t.Errorf("Expected no series and no error, got %v, %v", series, err)
	}
}

func TestCombineBuilders(t *testing.T) {
	one := func(ctx context.Context, readings []reading.Reading) ([]prompb.TimeSeries, error) {
		return []prompb.TimeSeries{{}}, nil
	}

	combined := CombineBuilders(one, nil, one)
	series, err := combined(context.Background(), nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(series) != 2 {
		t.Errorf("Expected 2 series, got %d", len(series))
	}

	boom := errors.New("boom")
	failing := CombineBuilders(one, func(context.Context, []reading.Reading) ([]prompb.TimeSeries, error) {
		return nil, boom
	})
	if _, err := failing(context.Background(), nil); !errors.Is(err, boom) {
		t.Errorf("Expected builder error, got: %v", err)
	}
}
