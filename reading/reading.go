package reading

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// BucketLayout is the date layout of bucket keys
const BucketLayout = "2006-01-02"

// Supported energy units, compared case-insensitively
const (
	UnitWh  = "wh"
	UnitKWh = "kwh"
)

var (
	// ErrInvalidInterval is returned when a reading does not end after it starts
	ErrInvalidInterval = errors.New("end time must be after start time")

	// ErrInvalidUnit is returned for units other than Wh and kWh
	ErrInvalidUnit = errors.New("invalid unit: use only Wh or kWh")
)

// Reading is an energy measurement over a time interval, normalized to
// watt-hours. It is the same concept as an ESPI IntervalBlock.
// Readings are values: they are never modified after construction.
type Reading struct {
	start    time.Time
	end      time.Time
	energyWh float64
}

// Key identifies a reading by its (start, end, energy) tuple.
// Two readings are Equal exactly when their keys are equal.
type Key struct {
	StartUnixNano int64
	EndUnixNano   int64
	EnergyWh      float64
}

// New creates a reading covering [start, end) with the given value in unit.
func New(start, end time.Time, unit string, value float64) (Reading, error) {
	if !start.Before(end) {
		return Reading{}, fmt.Errorf("%w: start %s, end %s",
			ErrInvalidInterval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	switch strings.ToLower(unit) {
	case UnitWh:
	case UnitKWh:
		value *= 1000
	default:
		return Reading{}, fmt.Errorf("%w: %q", ErrInvalidUnit, unit)
	}

	return Reading{
		start:    start,
		end:      end,
		energyWh: value,
	}, nil
}

// Combine merges two readings into one spanning both, with their energy summed.
// It does not check that a and b are adjacent or disjoint.
func Combine(a, b Reading) Reading {
	start := a.start
	if b.start.Before(start) {
		start = b.start
	}
	end := a.end
	if b.end.After(end) {
		end = b.end
	}

	return Reading{
		start:    start,
		end:      end,
		energyWh: a.energyWh + b.energyWh,
	}
}

// Start returns the beginning of the interval
func (r Reading) Start() time.Time { return r.start }

// End returns the end of the interval
func (r Reading) End() time.Time { return r.end }

// EnergyWh returns the energy used over the interval in watt-hours
func (r Reading) EnergyWh() float64 { return r.energyWh }

// Duration returns the length of the interval
func (r Reading) Duration() time.Duration {
	return r.end.Sub(r.start)
}

// Overlaps reports whether r and other share any time, or start or end at
// the same instant. Readings that only touch (one ends where the other
// starts) do not overlap.
func (r Reading) Overlaps(other Reading) bool {
	return (r.start.Before(other.start) && r.end.After(other.start)) ||
		(other.start.Before(r.start) && other.end.After(r.start)) ||
		r.start.Equal(other.start) ||
		r.end.Equal(other.end)
}

// Bucket returns the calendar date of the start time, in the start time's
// own location. Readings are stored grouped by this key.
func (r Reading) Bucket() string {
	return r.start.Format(BucketLayout)
}

// Key returns the comparable identity of the reading
func (r Reading) Key() Key {
	return Key{
		StartUnixNano: r.start.UnixNano(),
		EndUnixNano:   r.end.UnixNano(),
		EnergyWh:      r.energyWh,
	}
}

// Equal reports whether both readings cover the same instants with the same energy
func (r Reading) Equal(other Reading) bool {
	return r.Key() == other.Key()
}

// Hash returns a stable 64-bit hash of the reading's key
func (r Reading) Hash() uint64 {
	k := r.Key()
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(k.StartUnixNano))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(k.EndUnixNano))
	energy := k.EnergyWh
	if energy == 0 {
		// -0 and +0 compare equal, so they must hash equal too
		energy = 0
	}
	binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(energy))
	return xxhash.Sum64(buf[:])
}

func (r Reading) String() string {
	return fmt.Sprintf("Reading @ %s (%s): %g Wh", r.start.Format(time.RFC3339), r.Duration(), r.energyWh)
}
