package ipcam

import (
	"encoding/base64"
	"time"
)

// MessageType discriminates JSON messages pushed to clients
type MessageType string

// Message types
const (
	MessageStatus MessageType = "status"
	MessageError  MessageType = "error"
	MessageFrame  MessageType = "frame"
)

// TimestampLayout ISO-8601 local time with microseconds
const TimestampLayout = "2006-01-02T15:04:05.000000"

// StatusMessage informs the client about the stream state
type StatusMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// ErrorMessage is the last message of a failed session
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// DetectionPayload a detection as the client sees it
type DetectionPayload struct {
	Class   string `json:"class"`
	ClassID int    `json:"class_id"`
	// Confidence in percent, two decimals
	Confidence float64 `json:"confidence"`
	// Box x_min, y_min, x_max, y_max
	Box [4]int `json:"box"`
}

// FrameMessage one annotated frame
type FrameMessage struct {
	Type MessageType `json:"type"`
	// Image base64 encoded JPEG
	Image      string             `json:"image"`
	Detections []DetectionPayload `json:"detections"`
	Timestamp  string             `json:"timestamp"`
}

// NewStatusMessage status message
func NewStatusMessage(text string) StatusMessage {
	return StatusMessage{Type: MessageStatus, Message: text}
}

// NewErrorMessage error message
func NewErrorMessage(text string) ErrorMessage {
	return ErrorMessage{Type: MessageError, Message: text}
}

// NewFrameMessage wraps an encoded frame and its detections
func NewFrameMessage(jpeg []byte, detections []Detection, capturedAt time.Time) FrameMessage {
	payload := make([]DetectionPayload, 0, len(detections))
	for _, d := range detections {
		payload = append(payload, DetectionPayload{
			Class:      d.ClassName,
			ClassID:    d.ClassID,
			Confidence: d.Percent(),
			Box:        [4]int{d.Box.Min.X, d.Box.Min.Y, d.Box.Max.X, d.Box.Max.Y},
		})
	}
	return FrameMessage{
		Type:       MessageFrame,
		Image:      base64.StdEncoding.EncodeToString(jpeg),
		Detections: payload,
		Timestamp:  capturedAt.Format(TimestampLayout),
	}
}
