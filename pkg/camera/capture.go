package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// device is the part of gocv.VideoCapture a Capture reads from.
type device interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Capture reads frames from a camera through OpenCV.
type Capture struct {
	mu     sync.Mutex
	cfg    Config
	vc     device // nil after a failed reconfigure left no device open
	open   func(Config) (device, error)
	frame  gocv.Mat
	closed bool
	logger *slog.Logger
}

var _ Source = (*Capture)(nil)

// Open opens the camera described by cfg.
func Open(cfg Config, logger *slog.Logger) (*Capture, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera config: %v", errs)
	}
	if logger == nil {
		logger = slog.Default()
	}

	vc, err := openDevice(cfg)
	if err != nil {
		return nil, err
	}

	c := &Capture{
		cfg:    cfg,
		vc:     vc,
		open:   openDevice,
		frame:  gocv.NewMat(),
		logger: logger.With("component", "camera"),
	}
	c.logger.Info("camera opened", "device", cfg.Device, "index", cfg.Index,
		"width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)
	return c, nil
}

func openDevice(cfg Config) (device, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	switch cfg.Device {
	case DevicePicam:
		vc, err = gocv.OpenVideoCaptureWithAPI(cfg.Pipeline(), gocv.VideoCaptureGstreamer)
	default:
		vc, err = gocv.OpenVideoCaptureWithAPI(cfg.Index, gocv.VideoCaptureV4L2)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s camera: %w", cfg.Device, err)
	}

	if cfg.Device == DeviceUSB {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}
	return vc, nil
}

// Capture grabs the next frame and encodes it as JPEG.
func (c *Capture) Capture() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.vc == nil {
		return nil, ErrNoFrame
	}
	if ok := c.vc.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, ErrNoFrame
	}

	if code, ok := c.cfg.flipCode(); ok {
		gocv.Flip(c.frame, &c.frame, code)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.frame, []int{int(gocv.IMWriteJpegQuality), c.cfg.Quality})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close
	src := buf.GetBytes()
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// Reconfigure reopens the device with cfg. It is used as the camera
// Manager's OnConfigChange callback. V4L2 refuses a second open of the same
// device, so the old one is closed first; if cfg cannot be opened the
// previous configuration is restored.
func (c *Capture) Reconfigure(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if c.vc != nil {
		if err := c.vc.Close(); err != nil {
			c.logger.Warn("closing previous device", "error", err)
		}
		c.vc = nil
	}

	vc, err := c.open(cfg)
	if err != nil {
		prev, rerr := c.open(c.cfg)
		if rerr != nil {
			c.logger.Error("camera lost, previous config failed to reopen", "error", rerr)
			return errors.Join(err, fmt.Errorf("restore previous config: %w", rerr))
		}
		c.vc = prev
		c.logger.Warn("camera reconfigure failed, previous config restored", "error", err)
		return err
	}

	c.vc = vc
	c.cfg = cfg
	c.logger.Info("camera reconfigured", "device", cfg.Device, "width", cfg.Width, "height", cfg.Height)
	return nil
}

// Close releases the device. Safe to call more than once.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.frame.Close()
	if c.vc == nil {
		return nil
	}
	return c.vc.Close()
}
