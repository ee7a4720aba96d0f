package ipcam

import "image"

// clampRect Corrects rectangle's bounds so it lies inside bounds, with Max on the last valid pixel.
// Helps to avoid BBox error assertion
func clampRect(r, bounds image.Rectangle) image.Rectangle {
	if bounds.Empty() {
		return r.Canon()
	}
	r = r.Canon()
	lastX, lastY := bounds.Max.X-1, bounds.Max.Y-1
	r.Min.X = clampInt(r.Min.X, bounds.Min.X, lastX)
	r.Min.Y = clampInt(r.Min.Y, bounds.Min.Y, lastY)
	r.Max.X = clampInt(r.Max.X, bounds.Min.X, lastX)
	r.Max.Y = clampInt(r.Max.Y, bounds.Min.Y, lastY)
	return r
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
