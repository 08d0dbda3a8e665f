package metrics

import (
	"context"
	"slices"

	"github.com/prometheus/prometheus/prompb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mjasion/balena-home/coned_rtu/reading"
)

// Series names written for every interval reading
const (
	EnergyMetricName   = "coned_interval_energy_wh"
	DurationMetricName = "coned_interval_duration_seconds"
)

// NewIntervalBuilder returns a TimeSeriesBuilder that writes the energy and
// duration of each reading, stamped at the end of its interval and labelled
// with the account and meter it was read from
func NewIntervalBuilder(accountID, meter string) TimeSeriesBuilder {
	return func(ctx context.Context, readings []reading.Reading) ([]prompb.TimeSeries, error) {
		_, span := otel.Tracer("metrics").Start(ctx, "metrics.BuildIntervalTimeSeries")
		defer span.End()

		if len(readings) == 0 {
			span.SetStatus(codes.Ok, "no readings")
			return nil, nil
		}

		// remote write expects samples in timestamp order
		sorted := slices.Clone(readings)
		slices.SortStableFunc(sorted, func(a, b reading.Reading) int {
			return a.End().Compare(b.End())
		})

		labels := []prompb.Label{
			{Name: "account_id", Value: accountID},
			{Name: "meter", Value: meter},
		}

		energy := make([]prompb.Sample, 0, len(sorted))
		duration := make([]prompb.Sample, 0, len(sorted))
		for _, r := range sorted {
			ts := r.End().UnixMilli()
			energy = append(energy, prompb.Sample{Value: r.EnergyWh(), Timestamp: ts})
			duration = append(duration, prompb.Sample{Value: r.Duration().Seconds(), Timestamp: ts})
		}

		timeSeries := []prompb.TimeSeries{
			{Labels: withName(labels, EnergyMetricName), Samples: energy},
			{Labels: withName(labels, DurationMetricName), Samples: duration},
		}

		span.SetAttributes(
			attribute.Int("metrics.interval_time_series_count", len(timeSeries)),
			attribute.Int("metrics.interval_samples", len(energy)),
		)
		span.SetStatus(codes.Ok, "interval time series built")

		return timeSeries, nil
	}
}

// CombineBuilders combines multiple time series builders into one
func CombineBuilders(builders ...TimeSeriesBuilder) TimeSeriesBuilder {
	return func(ctx context.Context, readings []reading.Reading) ([]prompb.TimeSeries, error) {
		var allTimeSeries []prompb.TimeSeries

		for _, builder := range builders {
			if builder == nil {
				continue
			}

			timeSeries, err := builder(ctx, readings)
			if err != nil {
				return nil, err
			}

			allTimeSeries = append(allTimeSeries, timeSeries...)
		}

		return allTimeSeries, nil
	}
}

func withName(labels []prompb.Label, name string) []prompb.Label {
	out := make([]prompb.Label, 0, len(labels)+1)
	out = append(out, prompb.Label{Name: "__name__", Value: name})
	return append(out, labels...)
}
