package scraper

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mjasion/balena-home/coned_rtu/reading"
)

// UsageResponse is the real-time usage document served by Opower
type UsageResponse struct {
	Unit  string `json:"unit"`
	Reads []Read `json:"reads"`
}

// Read is a single interval record of a usage response
type Read struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	// Value is nil for intervals the meter has not reported yet
	Value *float64 `json:"value"`
}

// DecodeUsage parses a raw usage payload into readings, in payload order.
// Records without a value are skipped.
func DecodeUsage(payload string) ([]reading.Reading, error) {
	var usage UsageResponse
	if err := json.Unmarshal([]byte(payload), &usage); err != nil {
		return nil, fmt.Errorf("failed to parse usage JSON: %w", err)
	}

	return usage.Readings()
}

// Readings converts the measured records of the response into readings
func (u *UsageResponse) Readings() ([]reading.Reading, error) {
	readings := make([]reading.Reading, 0, len(u.Reads))

	for i, read := range u.Reads {
		if read.Value == nil {
			continue
		}

		start, err := parseTimestamp(read.StartTime)
		if err != nil {
			return nil, fmt.Errorf("read %d: invalid startTime: %w", i, err)
		}
		end, err := parseTimestamp(read.EndTime)
		if err != nil {
			return nil, fmt.Errorf("read %d: invalid endTime: %w", i, err)
		}

		r, err := reading.New(start, end, u.Unit, *read.Value)
		if err != nil {
			return nil, fmt.Errorf("read %d: %w", i, err)
		}
		readings = append(readings, r)
	}

	return readings, nil
}

// parseTimestamp accepts ISO-8601 timestamps with an offset, with or without
// fractional seconds
func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
