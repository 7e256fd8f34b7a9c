package timeline

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sec(n float64) time.Duration {
	return FromSeconds(n)
}

func iv(start, end float64) Interval {
	return IntervalFromSeconds(start, end)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		cuts        []Interval
		d           time.Duration
		wantKeep    []Interval
		wantTrimmed time.Duration
	}{
		{
			name:        "two interior cuts",
			cuts:        []Interval{iv(10, 20), iv(50, 60)},
			d:           sec(100),
			wantKeep:    []Interval{iv(0, 10), iv(20, 50), iv(60, 100)},
			wantTrimmed: sec(80),
		},
		{
			name:        "cut at origin",
			cuts:        []Interval{iv(0, 15)},
			d:           sec(100),
			wantKeep:    []Interval{iv(15, 100)},
			wantTrimmed: sec(85),
		},
		{
			name:        "no cuts is pass-through",
			cuts:        nil,
			d:           sec(100),
			wantKeep:    nil,
			wantTrimmed: sec(100),
		},
		{
			name:        "cut at end",
			cuts:        []Interval{iv(90, 100)},
			d:           sec(100),
			wantKeep:    []Interval{iv(0, 90)},
			wantTrimmed: sec(90),
		},
		{
			name:        "everything cut",
			cuts:        []Interval{iv(0, 100)},
			d:           sec(100),
			wantKeep:    nil,
			wantTrimmed: 0,
		},
		{
			name:        "unsorted input",
			cuts:        []Interval{iv(50, 60), iv(10, 20)},
			d:           sec(100),
			wantKeep:    []Interval{iv(0, 10), iv(20, 50), iv(60, 100)},
			wantTrimmed: sec(80),
		},
		{
			name:        "overlapping cuts are merged",
			cuts:        []Interval{iv(10, 30), iv(20, 25), iv(28, 40)},
			d:           sec(100),
			wantKeep:    []Interval{iv(0, 10), iv(40, 100)},
			wantTrimmed: sec(70),
		},
		{
			name:        "touching cuts are merged",
			cuts:        []Interval{iv(10, 20), iv(20, 30)},
			d:           sec(100),
			wantKeep:    []Interval{iv(0, 10), iv(30, 100)},
			wantTrimmed: sec(90),
		},
		{
			name:        "cut past the end is clamped",
			cuts:        []Interval{iv(80, 150)},
			d:           sec(100),
			wantKeep:    []Interval{iv(0, 80)},
			wantTrimmed: sec(80),
		},
		{
			name:        "negative start is clamped",
			cuts:        []Interval{iv(-5, 10)},
			d:           sec(100),
			wantKeep:    []Interval{iv(10, 100)},
			wantTrimmed: sec(90),
		},
		{
			name:        "cuts entirely outside keep everything",
			cuts:        []Interval{iv(120, 130)},
			d:           sec(100),
			wantKeep:    []Interval{iv(0, 100)},
			wantTrimmed: sec(100),
		},
		{
			name:        "reversed cut is dropped",
			cuts:        []Interval{iv(30, 20), iv(50, 60)},
			d:           sec(100),
			wantKeep:    []Interval{iv(0, 50), iv(60, 100)},
			wantTrimmed: sec(90),
		},
		{
			name:        "zero duration",
			cuts:        []Interval{iv(0, 1)},
			d:           0,
			wantKeep:    nil,
			wantTrimmed: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keep, trimmed := Normalize(tt.cuts, tt.d)
			assert.Equal(t, tt.wantKeep, keep)
			assert.Equal(t, tt.wantTrimmed, trimmed)
		})
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	cuts := []Interval{iv(50, 60), iv(10, 20)}
	Normalize(cuts, sec(100))
	assert.Equal(t, []Interval{iv(50, 60), iv(10, 20)}, cuts)
}

func TestNormalize_RandomizedTotality(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 500; round++ {
		d := time.Duration(rng.Intn(1000)) * time.Millisecond
		n := rng.Intn(8)
		cuts := make([]Interval, n)
		for i := range cuts {
			a := time.Duration(rng.Intn(1400)-200) * time.Millisecond
			b := time.Duration(rng.Intn(1400)-200) * time.Millisecond
			cuts[i] = Interval{Start: a, End: b}
		}

		keep, trimmed := Normalize(cuts, d)

		if n == 0 {
			require.Nil(t, keep)
			require.Equal(t, d, trimmed)
			continue
		}

		require.Equal(t, Total(keep), trimmed, "round %d cuts %v", round, cuts)
		for i, k := range keep {
			require.Greater(t, k.Len(), time.Duration(0), "round %d keep %v", round, keep)
			require.GreaterOrEqual(t, k.Start, time.Duration(0))
			require.LessOrEqual(t, k.End, d)
			if i > 0 {
				require.LessOrEqual(t, keep[i-1].End, k.Start, "round %d keep %v", round, keep)
			}
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	d := sec(100)
	keep, trimmed := Normalize([]Interval{iv(10, 20), iv(50, 60), iv(95, 100)}, d)

	again, trimmedAgain := Normalize(Complement(keep, d), d)

	assert.Equal(t, keep, again)
	assert.Equal(t, trimmed, trimmedAgain)
}

func TestComplement(t *testing.T) {
	d := sec(100)
	got := Complement([]Interval{iv(0, 10), iv(20, 50), iv(60, 100)}, d)
	assert.Equal(t, []Interval{iv(10, 20), iv(50, 60)}, got)

	assert.Equal(t, []Interval{iv(0, 100)}, Complement(nil, d))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cuts    []Interval
		d       time.Duration
		wantErr bool
	}{
		{"valid", []Interval{iv(0, 10), iv(20, 30)}, sec(100), false},
		{"empty list", nil, sec(100), false},
		{"reversed", []Interval{iv(20, 10)}, sec(100), true},
		{"zero length", []Interval{iv(10, 10)}, sec(100), true},
		{"negative start", []Interval{iv(-1, 10)}, sec(100), true},
		{"past end", []Interval{iv(90, 101)}, sec(100), true},
		{"past end with unknown duration", []Interval{iv(90, 101)}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cuts, tt.d)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidInterval)
				return
			}
			require.NoError(t, err)
		})
	}
}
