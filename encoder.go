package ipcam

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DefaultJPEGQuality used when no quality is configured
const DefaultJPEGQuality = 80

// FrameEncoder compresses an annotated frame for transport
type FrameEncoder interface {
	// Encode returns the compressed bytes or an error wrapping ErrEncode
	Encode(frame gocv.Mat) ([]byte, error)
}

// JPEGEncoder lossy JPEG at a fixed quality
type JPEGEncoder struct {
	Quality int
}

// NewJPEGEncoder quality outside 0..100 falls back to DefaultJPEGQuality
func NewJPEGEncoder(quality int) *JPEGEncoder {
	if quality < 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &JPEGEncoder{Quality: quality}
}

// Encode frame as JPEG. The returned slice is owned by the caller.
func (e *JPEGEncoder) Encode(frame gocv.Mat) ([]byte, error) {
	if frame.Empty() {
		return nil, errors.Wrap(ErrEncode, "empty frame")
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{gocv.IMWriteJpegQuality, e.Quality})
	if err != nil {
		return nil, errors.Wrapf(ErrEncode, "Error while encoding to JPG: %s", err.Error())
	}
	defer buf.Close()

	native := buf.GetBytes()
	if len(native) == 0 {
		return nil, errors.Wrap(ErrEncode, "JPG encoder produced no data")
	}
	out := make([]byte, len(native))
	copy(out, native)
	return out, nil
}
