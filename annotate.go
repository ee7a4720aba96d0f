package ipcam

import (
	"image"
	"image/color"
	"strconv"

	"gocv.io/x/gocv"
)

// AnnotationStyle presentation parameters, they differ per output variant
type AnnotationStyle struct {
	Thickness     int
	Font          gocv.HersheyFont
	FontScale     float64
	TextThickness int
	// LabelMargin distance between the label baseline and the box top
	LabelMargin int
	TextColor   color.RGBA
}

// NewAnnotationStyle converts settings into a style
func NewAnnotationStyle(ss StyleSettings) AnnotationStyle {
	style := AnnotationStyle{
		Thickness:     ss.Thickness,
		Font:          ParseFont(ss.Font),
		FontScale:     ss.FontScale,
		TextThickness: ss.TextThickness,
		LabelMargin:   ss.LabelMargin,
		TextColor:     color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
	if style.Thickness <= 0 {
		style.Thickness = 1
	}
	if style.TextThickness <= 0 {
		style.TextThickness = 1
	}
	if style.FontScale <= 0 {
		style.FontScale = 0.5
	}
	return style
}

// ParseFont maps a font name to its Hershey face, simplex when unknown
func ParseFont(name string) gocv.HersheyFont {
	switch name {
	case "plain":
		return gocv.FontHersheyPlain
	case "duplex":
		return gocv.FontHersheyDuplex
	case "complex":
		return gocv.FontHersheyComplex
	case "triplex":
		return gocv.FontHersheyTriplex
	default:
		return gocv.FontHersheySimplex
	}
}

// Annotator draws detections onto frames. Safe to share between relays, it holds no per-frame state.
type Annotator struct {
	Style   AnnotationStyle
	Colors  ColorTable
	Classes ClassList
}

// NewAnnotator builds an annotator for style
func NewAnnotator(style AnnotationStyle, colors ColorTable, classes ClassList) *Annotator {
	return &Annotator{Style: style, Colors: colors, Classes: classes}
}

// Annotate draws a box and a "<class> <pct>%" label per detection, in place
func (a *Annotator) Annotate(frame *gocv.Mat, detections []Detection) {
	if len(detections) == 0 || frame.Empty() {
		return
	}
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())

	for _, detection := range detections {
		c := a.Colors.For(detection.ClassID)
		box := clampRect(detection.Box, bounds)
		gocv.Rectangle(frame, box, c, a.Style.Thickness)

		text := Label(a.className(detection), detection.Percent())
		textSize := gocv.GetTextSize(text, a.Style.Font, a.Style.FontScale, a.Style.TextThickness)
		origin := labelOrigin(box, textSize, a.Style.LabelMargin)
		gocv.PutText(frame, text, origin, a.Style.Font, a.Style.FontScale, a.Style.TextColor, a.Style.TextThickness)
	}
}

func (a *Annotator) className(d Detection) string {
	if name := a.Classes.Name(d.ClassID); name != "" {
		return name
	}
	return d.ClassName
}

// Label formats the text drawn above a box, e.g. "person 87.5%"
func Label(className string, percent float64) string {
	return className + " " + strconv.FormatFloat(percent, 'f', -1, 64) + "%"
}

// labelOrigin is the bottom-left corner of the label text. The label sits margin pixels
// above the box and is pushed down so its top never leaves the frame.
func labelOrigin(box image.Rectangle, textSize image.Point, margin int) image.Point {
	x := box.Min.X
	if x < 0 {
		x = 0
	}
	y := box.Min.Y - margin
	if y-textSize.Y < 0 {
		y = textSize.Y
	}
	return image.Pt(x, y)
}
