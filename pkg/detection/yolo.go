package detection

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"sort"
	"sync"

	"gocv.io/x/gocv"
)

// YOLODetector runs a YOLOv8 ONNX model through the OpenCV DNN module
type YOLODetector struct {
	net       gocv.Net
	config    YOLOConfig
	mu        sync.Mutex
	inputSize image.Point
	logger    *slog.Logger
}

// YOLOConfig holds YOLO detector configuration
type YOLOConfig struct {
	ModelPath        string
	ConfidenceThresh float32 // Candidates below this never reach the set
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
	MaxDetections    int // Cap on set length after NMS (0 = no cap)
}

// DefaultYOLOConfig returns production defaults for YOLOv8n.
// ConfidenceThresh is kept low so that the steering threshold decides.
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.25,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
		MaxDetections:    100,
	}
}

// NewYOLO loads the model and prepares a CPU inference session
func NewYOLO(cfg YOLOConfig, logger *slog.Logger) (*YOLODetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	if logger == nil {
		logger = slog.Default()
	}

	return &YOLODetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
		logger:    logger.With("component", "detection.yolo"),
	}, nil
}

// Detect finds objects in the JPEG image
func (d *YOLODetector) Detect(jpeg []byte) (Set, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	return d.DetectMat(img)
}

// DetectMat runs the model on an already decoded BGR frame
func (d *YOLODetector) DetectMat(img gocv.Mat) (Set, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	set, err := d.parseOutput(output)
	if err != nil {
		return nil, err
	}
	if len(set) > 0 {
		d.logger.Debug("objects detected", "count", len(set),
			"top", ClassName(set[0].ClassID), "score", set[0].Score)
	}
	return set, nil
}

type candidate struct {
	box     image.Rectangle
	score   float32
	classID int
}

// parseOutput decodes the [1, 84, N] YOLOv8 tensor: 4 box values
// (center x, center y, w, h in input pixels) then 80 class scores.
func (d *YOLODetector) parseOutput(output gocv.Mat) (Set, error) {
	sizes := output.Size()
	if len(sizes) < 3 {
		return nil, fmt.Errorf("unexpected output shape %v", sizes)
	}
	cols := sizes[1]
	rows := sizes[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	var cands []candidate
	for i := 0; i < rows; i++ {
		maxScore := float32(0)
		maxClassID := 0
		for c := 4; c < cols; c++ {
			if score := data[c*rows+i]; score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}
		if maxScore < d.config.ConfidenceThresh {
			continue
		}

		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		cands = append(cands, candidate{
			box:     image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2)),
			score:   maxScore,
			classID: maxClassID,
		})
	}
	if len(cands) == 0 {
		return nil, nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.box
		scores[i] = c.score
	}
	indices := gocv.NMSBoxes(boxes, scores, d.config.ConfidenceThresh, d.config.NMSThresh)

	// SSD backends emit in descending score order; keep that convention so
	// first-match consumers see the most confident box first.
	sort.SliceStable(indices, func(a, b int) bool {
		return cands[indices[a]].score > cands[indices[b]].score
	})
	if d.config.MaxDetections > 0 && len(indices) > d.config.MaxDetections {
		indices = indices[:d.config.MaxDetections]
	}

	return toSet(cands, indices, float64(d.config.InputWidth), float64(d.config.InputHeight))
}

// toSet lays the kept candidates out as the parallel arrays SSD-style
// backends return and builds the Set from them, normalizing pixel boxes to
// the input size.
func toSet(cands []candidate, indices []int, inW, inH float64) (Set, error) {
	classes := make([]int, len(indices))
	scores := make([]float64, len(indices))
	boxes := make([][4]float64, len(indices))
	for i, idx := range indices {
		c := cands[idx]
		classes[i] = c.classID
		scores[i] = float64(c.score)
		boxes[i] = [4]float64{
			clampUnit(float64(c.box.Min.Y) / inH),
			clampUnit(float64(c.box.Min.X) / inW),
			clampUnit(float64(c.box.Max.Y) / inH),
			clampUnit(float64(c.box.Max.X) / inW),
		}
	}
	return FromArrays(classes, scores, boxes, len(indices))
}

// Close releases the detector resources
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// clampUnit keeps model boxes that spill past the frame edge inside [0,1]
func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ Detector = (*YOLODetector)(nil)
