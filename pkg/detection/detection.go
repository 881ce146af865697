// Package detection provides object detection types and backends for the vehicle.
//
// A backend turns one camera frame into a Set: an ordered list of detections
// in the order the model emitted them. Boxes are normalized to [0,1] in
// (ymin, xmin, ymax, xmax) order, the layout SSD-style detectors produce.
package detection

// Box is a normalized bounding box.
type Box struct {
	YMin float64 `json:"ymin"`
	XMin float64 `json:"xmin"`
	YMax float64 `json:"ymax"`
	XMax float64 `json:"xmax"`
}

// Center returns the center point of the box
func (b Box) Center() (x, y float64) {
	return (b.XMin + b.XMax) / 2, (b.YMin + b.YMax) / 2
}

// Height returns the vertical extent of the box
func (b Box) Height() float64 {
	return b.YMax - b.YMin
}

// Detection is one object reported by the backend.
type Detection struct {
	ClassID int     `json:"class_id"`
	Score   float64 `json:"score"` // Confidence (0-1)
	Box     Box     `json:"box"`
}

// Set is the per-frame detection output, in backend emission order.
// The order is significant: consumers that pick "the first match" rely on it.
type Set []Detection

// Detector is the interface for object detection backends
type Detector interface {
	// Detect runs the model on a JPEG frame
	Detect(jpeg []byte) (Set, error)

	// Close releases resources
	Close() error
}
