package ipcam

import (
	"image/color"
	"math"
	"os"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// ClassList class names, index is the class id
type ClassList []string

// LoadClassList reads newline separated class names
func LoadClassList(path string) (ClassList, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrResourceMissing, "'%s' not found! Ensure the class list exists (%v)", path, err)
	}

	lines := strings.Split(string(content), "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil, errors.Wrapf(ErrResourceMissing, "'%s' contains no class names", path)
	}
	return ClassList(lines), nil
}

// Valid reports whether id indexes the list
func (cl ClassList) Valid(id int) bool {
	return id >= 0 && id < len(cl)
}

// Name class name for id, empty when out of range
func (cl ClassList) Name(id int) string {
	if !cl.Valid(id) {
		return ""
	}
	return cl[id]
}

// ColorTable box color per class id
type ColorTable []color.RGBA

// goldenAngle keeps neighbouring class ids far apart on the hue wheel
const goldenAngle = 137.50776405003785

// NewColorTable builds n colors. The same seed always yields the same table.
func NewColorTable(n int, seed int64) ColorTable {
	table := make(ColorTable, n)
	start := math.Mod(float64(seed)*goldenAngle, 360)
	if start < 0 {
		start += 360
	}
	for i := range table {
		hue := math.Mod(start+float64(i)*goldenAngle, 360)
		// alternate saturation/value bands so close hues stay distinguishable
		sat := 0.95 - 0.25*float64(i%3)/2
		val := 1.0 - 0.2*float64((i/3)%2)
		r, g, b := colorful.Hsv(hue, sat, val).Clamped().RGB255()
		table[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return table
}

// For color of class id
func (ct ColorTable) For(id int) color.RGBA {
	if len(ct) == 0 {
		return color.RGBA{R: 0, G: 255, B: 0, A: 255}
	}
	if id < 0 {
		id = -id
	}
	return ct[id%len(ct)]
}
