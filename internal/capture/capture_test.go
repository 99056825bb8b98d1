package capture

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"testing"
)

type fakeStream struct {
	closed int
	img    image.Image
}

func (s *fakeStream) Snapshot() (image.Image, error) {
	if s.img == nil {
		return nil, ErrNoFrame
	}
	return s.img, nil
}

func (s *fakeStream) Close() error {
	s.closed++
	return nil
}

type fakeDevice struct {
	opens   int
	err     error
	streams []*fakeStream
}

func (d *fakeDevice) Name() string { return "fake0" }

func (d *fakeDevice) Open(_ context.Context, w, h int) (Stream, error) {
	d.opens++
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeStream{img: image.NewRGBA(image.Rect(0, 0, w, h))}
	d.streams = append(d.streams, s)
	return s, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestStartStopIdempotent verifies repeated Start and Stop calls open and close the stream once.
func TestStartStopIdempotent(t *testing.T) {
	dev := &fakeDevice{}
	c := NewController(dev, 640, 480, testLogger())
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if dev.opens != 1 {
		t.Errorf("opens = %d, want 1", dev.opens)
	}

	img, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 640 || b.Dy() != 480 {
		t.Errorf("frame size = %v, want 640x480", b)
	}

	c.Stop()
	c.Stop()
	if dev.streams[0].closed != 1 {
		t.Errorf("closed = %d, want 1", dev.streams[0].closed)
	}
	if _, err := c.Snapshot(); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("Snapshot after stop = %v, want ErrNotCapturing", err)
	}
}

// TestRestartReopens verifies Restart closes the old stream and opens a new one.
func TestRestartReopens(t *testing.T) {
	dev := &fakeDevice{}
	c := NewController(dev, 640, 480, testLogger())
	c.Start(context.Background())
	if err := c.Restart(context.Background()); err != nil {
		t.Fatal(err)
	}
	if dev.opens != 2 || dev.streams[0].closed != 1 || !c.Active() {
		t.Errorf("opens=%d closed=%d active=%v", dev.opens, dev.streams[0].closed, c.Active())
	}
}

// TestStartWrapsDeviceError verifies plain open errors become unavailable DeviceErrors
// and typed errors pass through.
func TestStartWrapsDeviceError(t *testing.T) {
	dev := &fakeDevice{err: errors.New("no such device")}
	c := NewController(dev, 640, 480, testLogger())

	err := c.Start(context.Background())
	var de *DeviceError
	if !errors.As(err, &de) || de.Kind != KindUnavailable {
		t.Fatalf("err = %v, want unavailable DeviceError", err)
	}
	if c.Active() {
		t.Error("controller active after failed start")
	}

	dev.err = &DeviceError{Kind: KindPermission, Device: "fake0", Err: errors.New("denied")}
	err = c.Start(context.Background())
	if !errors.As(err, &de) || de.Kind != KindPermission {
		t.Fatalf("err = %v, want permission DeviceError", err)
	}
}
