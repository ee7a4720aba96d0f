package ipcam

import (
	"image"
	"time"

	"gocv.io/x/gocv"
)

// FrameData Wrapper around the frame in flight.
// Source is filled by the FrameSource, Scaled is what gets detected, annotated and delivered.
type FrameData struct {
	Source gocv.Mat // Source image
	Scaled gocv.Mat // Scaled image
	// Seq counts frames read by the owning relay, starting at 1
	Seq        uint64
	CapturedAt time.Time
}

// NewFrameData Simplifies creation of FrameData
func NewFrameData() *FrameData {
	return &FrameData{
		Source: gocv.NewMat(),
		Scaled: gocv.NewMat(),
	}
}

// Close Simplify memory management for each gocv.Mat of FrameData
func (fd *FrameData) Close() {
	_ = fd.Source.Close()
	_ = fd.Scaled.Close()
}

// Preprocess Scales image to given width and height. Zero width or height keeps the source size.
func (fd *FrameData) Preprocess(width, height int) {
	if width <= 0 || height <= 0 || (fd.Source.Cols() == width && fd.Source.Rows() == height) {
		fd.Source.CopyTo(&fd.Scaled)
		return
	}
	gocv.Resize(fd.Source, &fd.Scaled, image.Point{X: width, Y: height}, 0, 0, gocv.InterpolationDefault)
}
