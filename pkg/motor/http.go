package motor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-autocar/internal/httpc"
	"github.com/teslashibe/go-autocar/pkg/steering"
)

// DefaultHTTPTimeout bounds one drive request. A frame is ~100ms, so a
// slower controller is treated as failed.
const DefaultHTTPTimeout = 500 * time.Millisecond

// HTTP drives a motor controller that exposes a small JSON API:
//
//	POST {BaseURL}/api/drive  {"command":"forward"}
type HTTP struct {
	BaseURL string
	client  *http.Client
	closed  atomic.Bool
}

var _ Actuator = (*HTTP)(nil)

// NewHTTP creates an HTTP motor driver. A zero timeout uses DefaultHTTPTimeout.
func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTP{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  httpc.NewClient(timeout),
	}
}

type driveRequest struct {
	Command steering.Command `json:"command"`
}

func (h *HTTP) post(cmd steering.Command) error {
	if h.closed.Load() {
		return ErrClosed
	}

	data, err := json.Marshal(driveRequest{Command: cmd})
	if err != nil {
		return fmt.Errorf("failed to marshal drive payload: %w", err)
	}

	resp, err := httpc.PostContext(context.Background(), h.client, h.BaseURL+"/api/drive", "application/json", data)
	if err != nil {
		return fmt.Errorf("drive request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("drive request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (h *HTTP) Forward() error   { return h.post(steering.CommandForward) }
func (h *HTTP) Backward() error  { return h.post(steering.CommandBackward) }
func (h *HTTP) TurnLeft() error  { return h.post(steering.CommandTurnLeft) }
func (h *HTTP) TurnRight() error { return h.post(steering.CommandTurnRight) }
func (h *HTTP) Stop() error      { return h.post(steering.CommandStop) }

// Cleanup sends a final stop. Later calls return ErrClosed.
func (h *HTTP) Cleanup() error {
	if err := h.post(steering.CommandStop); err != nil {
		h.closed.Store(true)
		return err
	}
	h.closed.Store(true)
	return nil
}
