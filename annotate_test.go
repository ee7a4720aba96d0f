package ipcam

import (
	"bytes"
	"image"
	"testing"

	"gocv.io/x/gocv"
)

func newTestFrame() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 120, 160, gocv.MatTypeCV8UC3)
}

func TestAnnotateWithoutDetectionsLeavesFrameUntouched(t *testing.T) {
	frame := newTestFrame()
	defer frame.Close()
	original := frame.Clone()
	defer original.Close()

	annotator := NewAnnotator(NewAnnotationStyle(StyleSettings{Thickness: 2}), NewColorTable(2, 0), testClasses)
	annotator.Annotate(&frame, nil)
	annotator.Annotate(&frame, []Detection{})

	if !bytes.Equal(frame.ToBytes(), original.ToBytes()) {
		t.Error("frame changed although there was nothing to draw")
	}
}

func TestAnnotateDrawsBoxInClassColor(t *testing.T) {
	frame := newTestFrame()
	defer frame.Close()
	original := frame.Clone()
	defer original.Close()

	colors := NewColorTable(2, 0)
	annotator := NewAnnotator(NewAnnotationStyle(StyleSettings{Thickness: 1}), colors, testClasses)
	annotator.Annotate(&frame, []Detection{{
		Box:        image.Rect(40, 50, 100, 110),
		ClassID:    1,
		ClassName:  "dog",
		Confidence: 0.9,
	}})

	if bytes.Equal(frame.ToBytes(), original.ToBytes()) {
		t.Fatal("nothing was drawn")
	}
	// left edge of the box, below the label
	px := frame.GetVecbAt(80, 40)
	want := colors.For(1)
	if px[0] != want.B || px[1] != want.G || px[2] != want.R {
		t.Errorf("box pixel = %v, want BGR(%d,%d,%d)", px, want.B, want.G, want.R)
	}
}

func TestAnnotateBoxOutsideFrameDoesNotPanic(t *testing.T) {
	frame := newTestFrame()
	defer frame.Close()

	annotator := NewAnnotator(NewAnnotationStyle(StyleSettings{}), NewColorTable(2, 0), testClasses)
	annotator.Annotate(&frame, []Detection{
		{Box: image.Rect(-20, -20, 500, 500), ClassID: 0, ClassName: "person", Confidence: 0.5},
		{Box: image.Rect(0, 0, 10, 10), ClassID: 0, ClassName: "person", Confidence: 0.5},
	})
}

func TestLabelOrigin(t *testing.T) {
	text := image.Pt(60, 12)
	tests := []struct {
		name string
		box  image.Rectangle
		want image.Point
	}{
		{"room above box", image.Rect(30, 100, 90, 150), image.Pt(30, 90)},
		{"box touching top edge", image.Rect(30, 0, 90, 50), image.Pt(30, 12)},
		{"label would straddle top edge", image.Rect(30, 15, 90, 50), image.Pt(30, 12)},
		{"box left of frame", image.Rect(-5, 40, 20, 60), image.Pt(0, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := labelOrigin(tt.box, text, 10)
			if got != tt.want {
				t.Errorf("labelOrigin(%v) = %v, want %v", tt.box, got, tt.want)
			}
			if got.Y-text.Y < 0 || got.X < 0 {
				t.Errorf("label at %v leaves the frame", got)
			}
		})
	}
}

func TestLabel(t *testing.T) {
	if got := Label("person", 87.5); got != "person 87.5%" {
		t.Errorf("Label = %q", got)
	}
	if got := Label("dog", 45.12); got != "dog 45.12%" {
		t.Errorf("Label = %q", got)
	}
}

func TestClampRect(t *testing.T) {
	bounds := image.Rect(0, 0, 640, 480)
	got := clampRect(image.Rect(-10, -5, 700, 500), bounds)
	if want := image.Rect(0, 0, 639, 479); got != want {
		t.Errorf("clampRect = %v, want %v", got, want)
	}
	inside := image.Rect(10, 10, 20, 20)
	if got := clampRect(inside, bounds); got != inside {
		t.Errorf("clampRect changed %v to %v", inside, got)
	}
}

func TestParseFont(t *testing.T) {
	if ParseFont("complex") != gocv.FontHersheyComplex {
		t.Error("complex")
	}
	if ParseFont("nonsense") != gocv.FontHersheySimplex {
		t.Error("unknown fonts should fall back to simplex")
	}
}
