package ipcam

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hybridgroup/mjpeg"
	"github.com/pkg/errors"
)

type recordingSender struct {
	sent   []interface{}
	closed bool
	err    error
}

func (r *recordingSender) Send(msg interface{}) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) Close() error {
	r.closed = true
	return nil
}

func TestSocketSink(t *testing.T) {
	out := &recordingSender{}
	sink := &SocketSink{Encoder: &fakeEncoder{failOn: 2}, Out: out}
	frame := NewFrameData()
	defer frame.Close()
	frame.CapturedAt = time.Now()

	if err := sink.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := sink.Deliver(context.Background(), frame, nil); err != nil {
		t.Fatalf("Deliver() = %v", err)
	}
	if err := sink.Deliver(context.Background(), frame, nil); !errors.Is(err, ErrEncode) {
		t.Fatalf("Deliver() = %v, want ErrEncode", err)
	}
	sink.ReportError(errors.Wrap(ErrEndOfStream, "gone"))
	if err := sink.Close(); err != nil || !out.closed {
		t.Errorf("Close() = %v, closed = %v", err, out.closed)
	}

	if len(out.sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(out.sent))
	}
	if msg, ok := out.sent[0].(StatusMessage); !ok || msg.Message != StatusConnected {
		t.Errorf("first = %#v", out.sent[0])
	}
	if _, ok := out.sent[1].(FrameMessage); !ok {
		t.Errorf("second = %#v", out.sent[1])
	}
	if msg, ok := out.sent[2].(ErrorMessage); !ok || msg.Message != "Can't receive frame from camera" {
		t.Errorf("third = %#v", out.sent[2])
	}
}

func TestSocketSinkGoneClient(t *testing.T) {
	out := &recordingSender{err: errors.Wrap(ErrTransportClosed, "broken pipe")}
	sink := &SocketSink{Encoder: &fakeEncoder{}, Out: out}
	frame := NewFrameData()
	defer frame.Close()

	if err := sink.Deliver(context.Background(), frame, nil); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Deliver() = %v, want ErrTransportClosed", err)
	}
}

func TestMJPEGSink(t *testing.T) {
	sink := &MJPEGSink{Encoder: &fakeEncoder{failOn: 2}, Stream: mjpeg.NewStream()}
	frame := NewFrameData()
	defer frame.Close()

	if err := sink.Deliver(context.Background(), frame, nil); err != nil {
		t.Errorf("Deliver() = %v", err)
	}
	if err := sink.Deliver(context.Background(), frame, nil); !errors.Is(err, ErrEncode) {
		t.Errorf("Deliver() = %v, want ErrEncode", err)
	}
}

func TestIsQuitKey(t *testing.T) {
	keys := "q\x1b"
	tests := []struct {
		key  int
		want bool
	}{
		{'q', true},
		{27, true},
		{'q' | 0x100000, true},
		{'a', false},
		{-1, false},
	}
	for _, tt := range tests {
		if got := isQuitKey(tt.key, keys); got != tt.want {
			t.Errorf("isQuitKey(%d) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&SourceError{URL: "http://1.2.3.4:8080/video"}, "Cannot access the IP camera at http://1.2.3.4:8080/video. Please check the IP address and ensure the IP camera is running."},
		{errors.Wrap(ErrEndOfStream, "read"), "Can't receive frame from camera"},
		{errors.New("boom"), "boom"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := Describe(tt.err); got != tt.want {
			t.Errorf("Describe(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
	if !strings.HasPrefix(Describe(errors.Wrap(ErrResourceMissing, "'utils/coco.txt' not found!")), "Error: ") {
		t.Error("resource errors should be prefixed")
	}
}

func TestIsGracefulStop(t *testing.T) {
	for _, err := range []error{nil, ErrEndOfStream, ErrTransportClosed, ErrUserQuit, context.Canceled, errors.Wrap(ErrUserQuit, "key 113")} {
		if !IsGracefulStop(err) {
			t.Errorf("IsGracefulStop(%v) = false", err)
		}
	}
	for _, err := range []error{&SourceError{URL: "x"}, ErrResourceMissing, errors.New("boom")} {
		if IsGracefulStop(err) {
			t.Errorf("IsGracefulStop(%v) = true", err)
		}
	}
	if !errors.Is(&SourceError{URL: "x"}, ErrSourceUnavailable) {
		t.Error("SourceError should match ErrSourceUnavailable")
	}
}
