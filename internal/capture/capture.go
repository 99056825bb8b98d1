// Package capture owns the camera stream used by a live session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
)

// ErrNotCapturing is returned by Snapshot when no stream is open.
var ErrNotCapturing = errors.New("camera is not capturing")

// ErrNoFrame is returned by a stream that has not produced a frame yet.
var ErrNoFrame = errors.New("no frame available yet")

// Kind classifies a device failure.
type Kind string

const (
	KindPermission  Kind = "permission"
	KindUnavailable Kind = "unavailable"
)

// DeviceError reports why a camera could not be opened. It is user-actionable:
// grant access or connect a camera and start again.
type DeviceError struct {
	Kind   Kind
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	switch e.Kind {
	case KindPermission:
		return fmt.Sprintf("camera access denied (%s): %v", e.Device, e.Err)
	default:
		return fmt.Sprintf("camera unavailable (%s): %v", e.Device, e.Err)
	}
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Device opens camera streams.
type Device interface {
	Open(ctx context.Context, width, height int) (Stream, error)
	Name() string
}

// Stream is an open camera. Snapshot returns the newest frame.
type Stream interface {
	Snapshot() (image.Image, error)
	Close() error
}

// Controller starts and stops a single stream from a device.
type Controller struct {
	device Device
	width  int
	height int
	logger *slog.Logger

	mu     sync.Mutex
	stream Stream
}

// NewController creates a controller that opens device at width x height.
func NewController(device Device, width, height int, logger *slog.Logger) *Controller {
	return &Controller{device: device, width: width, height: height, logger: logger}
}

// Start opens the camera. Starting an already open controller is a no-op.
// Failures are returned as *DeviceError.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}
	s, err := c.device.Open(ctx, c.width, c.height)
	if err != nil {
		var de *DeviceError
		if !errors.As(err, &de) {
			err = &DeviceError{Kind: KindUnavailable, Device: c.device.Name(), Err: err}
		}
		c.logger.Warn("camera start failed", "device", c.device.Name(), "error", err)
		return err
	}
	c.stream = s
	c.logger.Info("camera started", "device", c.device.Name(), "width", c.width, "height", c.height)
	return nil
}

// Stop releases the stream. It is safe to call repeatedly.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	err := c.stream.Close()
	c.stream = nil
	if err != nil {
		c.logger.Warn("closing camera stream", "device", c.device.Name(), "error", err)
		return fmt.Errorf("closing camera stream: %w", err)
	}
	c.logger.Info("camera stopped", "device", c.device.Name())
	return nil
}

// Restart stops and reopens the camera.
func (c *Controller) Restart(ctx context.Context) error {
	_ = c.Stop()
	return c.Start(ctx)
}

// Active reports whether a stream is open.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// Snapshot returns the newest frame of the open stream.
func (c *Controller) Snapshot() (image.Image, error) {
	c.mu.Lock()
	s := c.stream
	c.mu.Unlock()
	if s == nil {
		return nil, ErrNotCapturing
	}
	return s.Snapshot()
}
