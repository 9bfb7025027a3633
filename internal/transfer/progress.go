package transfer

import (
	"fmt"
	"math"
	"sync"
)

// ProgressMode selects how part fractions combine into the overall percentage.
type ProgressMode int

const (
	// ProgressSequential assumes parts finish strictly in index order:
	// overall = 100 * (partIndex + fraction) / totalParts.
	ProgressSequential ProgressMode = iota
	// ProgressParallel sums every part's fraction:
	// overall = 100 * sum(fraction) / totalParts.
	ProgressParallel
)

// ProgressFunc receives the overall completion percentage in [0, 100].
// It is called synchronously while the aggregator holds its lock, so it must
// not block or perform network calls.
type ProgressFunc func(percent float64)

// Aggregator combines concurrent part-level byte counters into one
// non-decreasing percentage. It is the only writer of progress state.
type Aggregator struct {
	mu         sync.Mutex
	mode       ProgressMode
	totalParts int
	fractions  map[int]float64
	completed  map[int]bool
	last       float64
	published  bool
	sink       ProgressFunc
}

// NewAggregator creates an aggregator for totalParts parts. sink may be nil.
func NewAggregator(totalParts int, mode ProgressMode, sink ProgressFunc) *Aggregator {
	return &Aggregator{
		mode:       mode,
		totalParts: totalParts,
		fractions:  make(map[int]float64, totalParts),
		completed:  make(map[int]bool, totalParts),
		sink:       sink,
	}
}

// Report records that partIndex has loaded bytes out of total and returns the
// last published overall percentage. A value lower than the last published one
// is recorded but not surfaced.
func (a *Aggregator) Report(partIndex int, loaded, total int64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if partIndex < 0 || partIndex >= a.totalParts {
		return a.last
	}

	a.fractions[partIndex] = fraction(loaded, total)

	a.publish(a.overall(partIndex))

	return a.last
}

// Complete marks partIndex as fully transferred.
func (a *Aggregator) Complete(partIndex int) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if partIndex < 0 || partIndex >= a.totalParts {
		return a.last
	}

	a.fractions[partIndex] = 1
	a.completed[partIndex] = true

	if len(a.completed) == a.totalParts {
		a.publish(100)

		return a.last
	}

	a.publish(a.overall(partIndex))

	return a.last
}

// Finish makes sure 100 was published. It fails if any part was not completed.
func (a *Aggregator) Finish() (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.completed) != a.totalParts {
		return a.last, fmt.Errorf("%w: %d of %d parts completed", ErrProgressIncomplete, len(a.completed), a.totalParts)
	}

	a.publish(100)

	return a.last, nil
}

// Last returns the last published percentage.
func (a *Aggregator) Last() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.last
}

func (a *Aggregator) overall(partIndex int) float64 {
	if a.totalParts == 0 {
		return 0
	}

	var v float64

	switch a.mode {
	case ProgressSequential:
		v = 100 * (float64(partIndex) + a.fractions[partIndex]) / float64(a.totalParts)
	default:
		var sum float64
		for _, f := range a.fractions {
			sum += f
		}

		v = 100 * sum / float64(a.totalParts)
	}

	return math.Min(100, math.Max(0, v))
}

// publish must be called with a.mu held. Repeated values are not surfaced.
func (a *Aggregator) publish(v float64) {
	if v < a.last || (v == a.last && a.published) {
		return
	}

	a.last = v
	a.published = true

	if a.sink != nil {
		a.sink(v)
	}
}

func fraction(loaded, total int64) float64 {
	if total <= 0 || loaded <= 0 {
		return 0
	}

	if loaded >= total {
		return 1
	}

	return float64(loaded) / float64(total)
}
