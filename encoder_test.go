package ipcam

import (
	"testing"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

func TestJPEGEncoderEncodesFrame(t *testing.T) {
	frame := newTestFrame()
	defer frame.Close()

	data, err := NewJPEGEncoder(80).Encode(frame)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Errorf("output does not start with a JPEG SOI marker (%d bytes)", len(data))
	}
}

func TestJPEGEncoderRejectsEmptyFrame(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()

	if _, err := NewJPEGEncoder(80).Encode(empty); !errors.Is(err, ErrEncode) {
		t.Errorf("Encode(empty) = %v, want ErrEncode", err)
	}
}

func TestNewJPEGEncoderQuality(t *testing.T) {
	for quality, want := range map[int]int{-1: 80, 0: 0, 55: 55, 100: 100, 101: 80} {
		if got := NewJPEGEncoder(quality).Quality; got != want {
			t.Errorf("NewJPEGEncoder(%d).Quality = %d, want %d", quality, got, want)
		}
	}
}
