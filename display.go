package ipcam

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DisplaySink renders frames to a local window. Pacing comes from the window's key poll.
type DisplaySink struct {
	window    *gocv.Window
	quitKeys  string
	closeOnce sync.Once
}

// NewDisplaySink opens the window; any key in quitKeys stops the relay
func NewDisplaySink(ds DisplaySettings) *DisplaySink {
	window := gocv.NewWindow(ds.WindowTitle)
	if ds.Width > 0 && ds.Height > 0 {
		window.ResizeWindow(ds.Width, ds.Height)
	}
	return &DisplaySink{window: window, quitKeys: ds.QuitKeys}
}

// Deliver shows the frame and polls the keyboard
func (d *DisplaySink) Deliver(ctx context.Context, frame *FrameData, detections []Detection) error {
	d.window.IMShow(frame.Scaled)
	if key := d.window.WaitKey(1); isQuitKey(key, d.quitKeys) {
		return errors.Wrapf(ErrUserQuit, "key %d pressed", key)
	}
	return nil
}

// Close destroys the window
func (d *DisplaySink) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.window.Close()
	})
	return err
}

func isQuitKey(key int, quitKeys string) bool {
	if key < 0 {
		return false
	}
	key &= 0xFF
	for i := 0; i < len(quitKeys); i++ {
		if int(quitKeys[i]) == key {
			return true
		}
	}
	return false
}
