package ipcam

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// State of a relay
type State int32

// Relay states
const (
	StateStarting State = iota
	StateStreaming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Sink receives annotated frames. Implementations may also satisfy
// Start(ctx) error, ReportError(error) and io.Closer; the relay calls them
// when entering Streaming, before releasing on failure, and once on Stopped.
type Sink interface {
	// Deliver hands over the frame in flight. ErrEncode skips the frame,
	// any other error stops the relay.
	Deliver(ctx context.Context, frame *FrameData, detections []Detection) error
}

type sinkStarter interface {
	Start(ctx context.Context) error
}

type sinkReporter interface {
	ReportError(err error)
}

// Relay runs read -> detect -> annotate -> deliver for one stream, one frame at a time
type Relay struct {
	Open      OpenSourceFunc
	Detector  Detector
	Annotator *Annotator
	Sink      Sink
	// Width and Height of delivered frames, zero keeps the camera size
	Width, Height int
	// Interval paces frames; zero runs as fast as the pipeline allows
	Interval time.Duration
	Metrics  *Metrics
	Log      *log.Entry

	state   atomic.Int32
	started atomic.Bool
}

// State current state, safe to call from other goroutines
func (r *Relay) State() State {
	return State(r.state.Load())
}

// Run blocks until the stream stops. The frame source and the sink are
// released exactly once whatever the exit path. Clean ends (camera stopped,
// client gone, quit key, cancellation) still return their cause; use
// IsGracefulStop to tell them from failures. Run may only be called once.
func (r *Relay) Run(ctx context.Context) (err error) {
	if !r.started.CompareAndSwap(false, true) {
		return errors.New("relay already started")
	}
	logger := moduleLogger(r.Log, "relay")
	r.state.Store(int32(StateStarting))

	var source FrameSource
	defer func() {
		r.release(source, err, logger)
	}()

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	source, err = r.Open(ctx)
	if err != nil {
		return err
	}
	if starter, ok := r.Sink.(sinkStarter); ok {
		if err = starter.Start(ctx); err != nil {
			return err
		}
	}

	r.state.Store(int32(StateStreaming))
	logger.Debug("Streaming")
	return r.stream(ctx, source, logger)
}

func (r *Relay) stream(ctx context.Context, source FrameSource, logger *log.Entry) error {
	frame := NewFrameData()
	defer frame.Close()

	var tick <-chan time.Time
	if r.Interval > 0 {
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		started := time.Now()
		if err := source.Read(&frame.Source); err != nil {
			return err
		}
		frame.Seq++
		frame.CapturedAt = started
		r.Metrics.frameCaptured()
		frame.Preprocess(r.Width, r.Height)

		detections, err := r.Detector.Detect(frame.Scaled)
		if err != nil {
			logger.WithError(err).WithField("seq", frame.Seq).Warn("Can't detect objects, skipping frame")
			r.Metrics.frameSkipped(skipDetect)
		} else {
			if r.Annotator != nil {
				r.Annotator.Annotate(&frame.Scaled, detections)
			}
			err = r.Sink.Deliver(ctx, frame, detections)
			switch {
			case err == nil:
				r.Metrics.frameDelivered(detections, started)
				logger.WithField("seq", frame.Seq).WithField("detections", len(detections)).Debug("Frame delivered")
			case errors.Is(err, ErrEncode):
				logger.WithError(err).WithField("seq", frame.Seq).Warn("Can't encode frame, skipping")
				r.Metrics.frameSkipped(skipEncode)
			default:
				return err
			}
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return context.Cause(ctx)
			case <-tick:
			}
		}
	}
}

func (r *Relay) release(source FrameSource, err error, logger *log.Entry) {
	r.state.Store(int32(StateStopped))

	if reportable(err) {
		if reporter, ok := r.Sink.(sinkReporter); ok {
			reporter.ReportError(err)
		}
	}
	if source != nil {
		if cerr := source.Close(); cerr != nil {
			logger.WithError(cerr).Warn("Can't release frame source")
		}
	}
	if closer, ok := r.Sink.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil {
			logger.WithError(cerr).Debug("Can't close sink")
		}
	}

	switch {
	case err == nil:
		logger.Info("Relay stopped")
	case IsGracefulStop(err):
		logger.WithField("reason", err.Error()).Info("Relay stopped")
	default:
		logger.WithError(err).Error("Relay failed")
	}
}

// reportable errors are worth telling the peer about; a gone peer or a local quit is not
func reportable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrTransportClosed) &&
		!errors.Is(err, ErrUserQuit) &&
		!errors.Is(err, context.Canceled)
}
