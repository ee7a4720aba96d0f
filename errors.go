package ipcam

import (
	"context"

	"github.com/pkg/errors"
)

// Failure kinds. Components wrap one of these with context, callers classify with errors.Is.
var (
	// ErrResourceMissing class list or model weights could not be loaded
	ErrResourceMissing = errors.New("resource missing")
	// ErrSourceUnavailable camera could not be opened
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrEndOfStream camera stopped delivering frames mid-session
	ErrEndOfStream = errors.New("end of stream")
	// ErrEncode a single frame could not be compressed
	ErrEncode = errors.New("encode failed")
	// ErrTransportClosed client went away
	ErrTransportClosed = errors.New("transport closed")
	// ErrUserQuit quit key pressed in the local window
	ErrUserQuit = errors.New("user quit")
)

// IsGracefulStop reports whether err ends a relay without being a failure
func IsGracefulStop(err error) bool {
	if err == nil {
		return true
	}
	return errors.Is(err, ErrEndOfStream) ||
		errors.Is(err, ErrTransportClosed) ||
		errors.Is(err, ErrUserQuit) ||
		errors.Is(err, context.Canceled)
}

// Describe returns the operator facing text for err, as sent in "error" messages
func Describe(err error) string {
	var sourceErr *SourceError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &sourceErr):
		return sourceErr.Message()
	case errors.Is(err, ErrEndOfStream):
		return "Can't receive frame from camera"
	case errors.Is(err, ErrResourceMissing):
		return "Error: " + err.Error()
	default:
		return err.Error()
	}
}

// SourceError camera endpoint could not be opened
type SourceError struct {
	URL string
	Err error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return "can't open camera " + e.URL + ": " + e.Err.Error()
	}
	return "can't open camera " + e.URL
}

// Message human readable hint for the operator
func (e *SourceError) Message() string {
	return "Cannot access the IP camera at " + e.URL + ". Please check the IP address and ensure the IP camera is running."
}

// Is makes errors.Is(err, ErrSourceUnavailable) hold for every SourceError
func (e *SourceError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
