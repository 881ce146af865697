package detection

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned for detection input that violates the set
// preconditions (ranges, ordering, parallel-array lengths).
var ErrMalformed = errors.New("detection: malformed input")

// ValidationError describes the first offending detection in a Set.
type ValidationError struct {
	Index  int    // Position in the set, -1 for whole-set problems
	Field  string // e.g. "score", "box.xmin", "length"
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("detection: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("detection[%d]: %s: %s", e.Index, e.Field, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrMalformed).
func (e *ValidationError) Unwrap() error {
	return ErrMalformed
}

// Validate checks scores and coordinates are in [0,1] and that every box
// has min <= max on both axes. NaN fails every range check.
func (s Set) Validate() error {
	for i, d := range s {
		if !unit(d.Score) {
			return &ValidationError{Index: i, Field: "score", Reason: fmt.Sprintf("%v outside [0,1]", d.Score)}
		}
		coords := []struct {
			name string
			v    float64
		}{
			{"box.ymin", d.Box.YMin},
			{"box.xmin", d.Box.XMin},
			{"box.ymax", d.Box.YMax},
			{"box.xmax", d.Box.XMax},
		}
		for _, c := range coords {
			if !unit(c.v) {
				return &ValidationError{Index: i, Field: c.name, Reason: fmt.Sprintf("%v outside [0,1]", c.v)}
			}
		}
		if d.Box.YMin > d.Box.YMax {
			return &ValidationError{Index: i, Field: "box.y", Reason: fmt.Sprintf("ymin %v > ymax %v", d.Box.YMin, d.Box.YMax)}
		}
		if d.Box.XMin > d.Box.XMax {
			return &ValidationError{Index: i, Field: "box.x", Reason: fmt.Sprintf("xmin %v > xmax %v", d.Box.XMin, d.Box.XMax)}
		}
	}
	return nil
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}

// FromArrays builds a Set from the parallel arrays a TensorFlow-style
// backend returns: class ids, scores, and (ymin, xmin, ymax, xmax) boxes,
// with count giving the number of valid leading entries. Arrays may be
// padded beyond count but never shorter.
func FromArrays(classes []int, scores []float64, boxes [][4]float64, count int) (Set, error) {
	if count < 0 {
		return nil, &ValidationError{Index: -1, Field: "count", Reason: fmt.Sprintf("negative count %d", count)}
	}
	if len(classes) < count || len(scores) < count || len(boxes) < count {
		return nil, &ValidationError{
			Index: -1,
			Field: "length",
			Reason: fmt.Sprintf("count %d exceeds arrays (classes=%d scores=%d boxes=%d)",
				count, len(classes), len(scores), len(boxes)),
		}
	}

	set := make(Set, count)
	for i := 0; i < count; i++ {
		b := boxes[i]
		set[i] = Detection{
			ClassID: classes[i],
			Score:   scores[i],
			Box:     Box{YMin: b[0], XMin: b[1], YMax: b[2], XMax: b[3]},
		}
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}
