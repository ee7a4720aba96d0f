package ipcam

import (
	"encoding/base64"
	"encoding/json"
	"image"
	"strings"
	"testing"
	"time"
)

func TestFrameMessageWireFormat(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.Local)
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xD9}
	msg := NewFrameMessage(jpeg, []Detection{{
		Box:        image.Rect(1, 2, 3, 4),
		ClassID:    0,
		ClassName:  "person",
		Confidence: 0.875,
	}}, at)

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Type       string `json:"type"`
		Image      string `json:"image"`
		Detections []struct {
			Class      string  `json:"class"`
			Confidence float64 `json:"confidence"`
			Box        []int   `json:"box"`
		} `json:"detections"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}

	if decoded.Type != "frame" {
		t.Errorf("type = %q", decoded.Type)
	}
	img, err := base64.StdEncoding.DecodeString(decoded.Image)
	if err != nil || string(img) != string(jpeg) {
		t.Errorf("image does not round trip: %v", err)
	}
	if len(decoded.Detections) != 1 || decoded.Detections[0].Class != "person" || decoded.Detections[0].Confidence != 87.5 {
		t.Errorf("detections = %+v", decoded.Detections)
	}
	if decoded.Timestamp != "2025-03-14T09:26:53.589793" {
		t.Errorf("timestamp = %q", decoded.Timestamp)
	}
}

func TestFrameMessageWithoutDetections(t *testing.T) {
	raw, err := json.Marshal(NewFrameMessage(nil, nil, time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"detections":[]`) {
		t.Errorf("empty detections should encode as an array: %s", raw)
	}
}

func TestStatusAndErrorMessages(t *testing.T) {
	raw, _ := json.Marshal(NewStatusMessage(StatusConnected))
	if string(raw) != `{"type":"status","message":"Connected to camera stream"}` {
		t.Errorf("status = %s", raw)
	}
	raw, _ = json.Marshal(NewErrorMessage("boom"))
	if string(raw) != `{"type":"error","message":"boom"}` {
		t.Errorf("error = %s", raw)
	}
}
