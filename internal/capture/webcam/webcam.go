// Package webcam is the OpenCV camera device used outside tests.
package webcam

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/claude/physiotrack/internal/capture"
)

// Device opens a camera by numeric id, or replays a video file when source
// names an existing path.
type Device struct {
	source string
	logger *slog.Logger
}

// New creates a device for source ("0", "1", ... or a file path).
func New(source string, logger *slog.Logger) *Device {
	return &Device{source: source, logger: logger}
}

func (d *Device) Name() string { return d.source }

func (d *Device) Open(ctx context.Context, width, height int) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		vc     *gocv.VideoCapture
		err    error
		isFile bool
	)
	if _, statErr := os.Stat(d.source); statErr == nil {
		isFile = true
		vc, err = gocv.VideoCaptureFile(d.source)
	} else {
		id, convErr := strconv.Atoi(d.source)
		if convErr != nil {
			return nil, &capture.DeviceError{Kind: capture.KindUnavailable, Device: d.source, Err: fmt.Errorf("not a camera id or file: %w", convErr)}
		}
		vc, err = gocv.VideoCaptureDevice(id)
	}
	if err != nil {
		return nil, classify(d.source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &capture.DeviceError{Kind: capture.KindUnavailable, Device: d.source, Err: fmt.Errorf("device did not open")}
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))

	s := &stream{
		vc:     vc,
		isFile: isFile,
		logger: d.logger.With("device", d.source),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

// classify maps an OpenCV open error onto a device error kind.
func classify(device string, err error) error {
	kind := capture.KindUnavailable
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "not authorized") {
		kind = capture.KindPermission
	}
	return &capture.DeviceError{Kind: kind, Device: device, Err: err}
}

// stream reads frames continuously and keeps only the newest one.
type stream struct {
	vc     *gocv.VideoCapture
	isFile bool
	logger *slog.Logger

	mu     sync.Mutex
	latest image.Image

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (s *stream) readLoop() {
	defer s.wg.Done()
	mat := gocv.NewMat()
	defer mat.Close()

	misses := 0
	for {
		select {
		case <-s.done:
			return
		default:
		}

		if ok := s.vc.Read(&mat); !ok || mat.Empty() {
			misses++
			if s.isFile {
				s.vc.Set(gocv.VideoCapturePosFrames, 0)
			}
			d := capture.RetryDelay(s.isFile, misses)
			if d == 0 {
				continue
			}
			if misses%50 == 2 {
				s.logger.Warn("camera returned no frame", "misses", misses)
			}
			time.Sleep(d)
			continue
		}
		misses = 0

		img, err := mat.ToImage()
		if err != nil {
			s.logger.Warn("converting frame", "error", err)
			continue
		}
		s.mu.Lock()
		s.latest = img
		s.mu.Unlock()

		if s.isFile {
			// Replay at roughly real time.
			time.Sleep(33 * time.Millisecond)
		}
	}
}

func (s *stream) Snapshot() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil, capture.ErrNoFrame
	}
	return s.latest, nil
}

func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.vc.Close()
	})
	return err
}
