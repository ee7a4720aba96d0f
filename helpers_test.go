package ipcam

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var testClasses = ClassList{"person", "dog"}

// fakeSource yields frames solid-colored frames, then ErrEndOfStream. frames < 0 never ends.
type fakeSource struct {
	frames int
	reads  int32
	closes int32
}

func (f *fakeSource) Read(dst *gocv.Mat) error {
	n := atomic.AddInt32(&f.reads, 1)
	if f.frames >= 0 && int(n) > f.frames {
		return errors.Wrap(ErrEndOfStream, "fake camera stopped")
	}
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer m.Close()
	m.CopyTo(dst)
	return nil
}

func (f *fakeSource) Close() error {
	atomic.AddInt32(&f.closes, 1)
	return nil
}

func (f *fakeSource) closed() int32 {
	return atomic.LoadInt32(&f.closes)
}

func openerFor(src *fakeSource) OpenSourceFunc {
	return func(ctx context.Context) (FrameSource, error) {
		return src, nil
	}
}

// fakeDetector reports one person per frame; failOn makes the n-th call fail
type fakeDetector struct {
	calls  int32
	failOn int32
}

func (d *fakeDetector) Detect(frame gocv.Mat) ([]Detection, error) {
	n := atomic.AddInt32(&d.calls, 1)
	if n == d.failOn {
		return nil, errors.New("accelerator queue timed out")
	}
	return []Detection{{
		Box:        image.Rect(5, 0, 30, 20),
		ClassID:    0,
		ClassName:  "person",
		Confidence: 0.875,
	}}, nil
}

// recordingSink remembers what the relay did with it
type recordingSink struct {
	mu        sync.Mutex
	delivered []uint64
	failures  map[uint64]error
	started   int
	reported  []error
	closes    int
	onDeliver func(seq uint64)
}

func (s *recordingSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
	return nil
}

func (s *recordingSink) Deliver(ctx context.Context, frame *FrameData, detections []Detection) error {
	s.mu.Lock()
	err := s.failures[frame.Seq]
	if err == nil {
		s.delivered = append(s.delivered, frame.Seq)
	}
	hook := s.onDeliver
	s.mu.Unlock()

	if hook != nil {
		hook(frame.Seq)
	}
	return err
}

func (s *recordingSink) ReportError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reported = append(s.reported, err)
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// fakeEncoder returns a tiny JPEG marker pair; failOn makes the n-th call fail
type fakeEncoder struct {
	calls  int32
	failOn int32
}

func (e *fakeEncoder) Encode(frame gocv.Mat) ([]byte, error) {
	n := atomic.AddInt32(&e.calls, 1)
	if n == e.failOn {
		return nil, errors.Wrap(ErrEncode, "fake codec failure")
	}
	return []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
