package pipeline

import "fmt"

// accumulator streams one series window into running max/min/(sum,count)
// without buffering the window's values.
// Params: running reduction state.
// Returns: per-window reduction accumulator.
type accumulator struct {
	count int
	max   float64
	min   float64
	sum   float64
}

// Add folds one numeric sample into the running state.
// Params: value parsed sample; callers exclude nulls before calling.
// Returns: none.
func (a *accumulator) Add(value float64) {
	if a.count == 0 {
		a.max = value
		a.min = value
	} else {
		if value > a.max {
			a.max = value
		}
		if value < a.min {
			a.min = value
		}
	}
	a.sum += value
	a.count++
}

// Result computes one reducer scalar over the accumulated window.
// Params: reducer name (max, min, avg).
// Returns: reduced value, nil when the window held no numeric samples, or an
// error for an unsupported reducer name.
func (a *accumulator) Result(reducer string) (*float64, error) {
	var out float64
	switch reducer {
	case "max":
		out = a.max
	case "min":
		out = a.min
	case "avg":
		if a.count > 0 {
			out = a.sum / float64(a.count)
		}
	default:
		return nil, fmt.Errorf("unsupported aggregation %q", reducer)
	}

	if a.count == 0 {
		return nil, nil
	}
	return &out, nil
}
