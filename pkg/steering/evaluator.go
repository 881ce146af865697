package steering

import "github.com/teslashibe/go-autocar/pkg/detection"

// Reading is the obstacle seen in one frame, if any.
type Reading struct {
	Present bool    `json:"present"`
	Index   int     `json:"index"` // Position in the detection set, -1 when absent
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	SpanY   float64 `json:"span_y"` // Box height, larger means closer
	Score   float64 `json:"score"`
}

// NoObstacle is the reading for a frame without a qualifying detection
var NoObstacle = Reading{Index: -1}

// Evaluate returns the first detection in set order that matches the
// obstacle class with a score strictly above the confidence threshold.
//
// Selection is first-match, not best-match: a later detection with a
// higher score never displaces an earlier qualifying one. A malformed set
// is rejected before any selection happens.
func Evaluate(set detection.Set, cfg Config) (Reading, error) {
	if err := set.Validate(); err != nil {
		return NoObstacle, err
	}

	for i, d := range set {
		if d.ClassID != cfg.ObstacleClass || d.Score <= cfg.ConfidenceThreshold {
			continue
		}
		cx, cy := d.Box.Center()
		return Reading{
			Present: true,
			Index:   i,
			CenterX: cx,
			CenterY: cy,
			SpanY:   d.Box.Height(),
			Score:   d.Score,
		}, nil
	}
	return NoObstacle, nil
}
