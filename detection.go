package ipcam

import (
	"fmt"
	"image"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Network output layouts
const (
	// LayoutYOLOv8 single output [1, 4+classes, anchors], boxes in input pixels
	LayoutYOLOv8 = "yolov8"
	// LayoutDarknet one output per YOLO layer, rows of cx,cy,w,h,objectness,scores... normalized
	LayoutDarknet = "darknet"
)

const (
	yoloScaleFactor = 1.0 / 255.0
	yoloBlobName    = ""
)

var yoloMean = gocv.NewScalar(0.0, 0.0, 0.0, 0.0)

// Detection Store detected object info
type Detection struct {
	// Bounding box in frame pixels, Min <= Max
	Box image.Rectangle
	// Class identifier, always a valid index into the class list
	ClassID int
	// Class name from the class list
	ClassName string
	// Raw model confidence in [0,1]
	Confidence float32
}

// Percent confidence as a percentage rounded to two decimals. Display only.
func (d Detection) Percent() float64 {
	return math.Round(float64(d.Confidence)*10000) / 100
}

func (d Detection) String() string {
	return fmt.Sprintf("Detection{class: %s(%d), conf: %.5f, box: ((%d, %d), (%d, %d))}", d.ClassName, d.ClassID, d.Confidence, d.Box.Min.X, d.Box.Min.Y, d.Box.Max.X, d.Box.Max.Y)
}

// Detector wraps the opaque detection model
type Detector interface {
	Detect(frame gocv.Mat) ([]Detection, error)
}

// NetDetector runs a YOLO model through OpenCV's DNN module
type NetDetector struct {
	net        gocv.Net
	layerNames []string
	settings   NeuralNetworkSettings
	classes    ClassList
	allowed    map[int]bool
	inputSize  image.Point
}

// NewNetDetector loads the model once. A missing weights file is ErrResourceMissing.
func NewNetDetector(settings NeuralNetworkSettings, classes ClassList) (*NetDetector, error) {
	weights := ResolveResourcePath(settings.Weights)
	if _, err := os.Stat(weights); err != nil {
		return nil, errors.Wrapf(ErrResourceMissing, "model weights '%s' not found", weights)
	}
	config := ResolveResourcePath(settings.Config)

	neuralNet := gocv.ReadNet(weights, config)
	if neuralNet.Empty() {
		_ = neuralNet.Close()
		return nil, errors.Wrapf(ErrResourceMissing, "can't load model from '%s'", weights)
	}

	if err := neuralNet.SetPreferableBackend(gocv.ParseNetBackend(settings.Backend)); err != nil {
		_ = neuralNet.Close()
		return nil, errors.Wrapf(err, "Can't set backend %s", settings.Backend)
	}
	if err := neuralNet.SetPreferableTarget(gocv.ParseNetTarget(settings.Target)); err != nil {
		_ = neuralNet.Close()
		return nil, errors.Wrapf(err, "Can't set target %s", settings.Target)
	}

	outLayerNames := make([]string, 0, 3)
	for _, idx := range neuralNet.GetUnconnectedOutLayers() {
		layer := neuralNet.GetLayer(idx)
		outLayerNames = append(outLayerNames, layer.GetName())
	}

	size := settings.InputSize
	if size <= 0 {
		size = 640
	}

	return &NetDetector{
		net:        neuralNet,
		layerNames: outLayerNames,
		settings:   settings,
		classes:    classes,
		allowed:    allowedClassIDs(classes, settings.TargetClasses),
		inputSize:  image.Point{X: size, Y: size},
	}, nil
}

// Detect runs one forward pass over frame
func (d *NetDetector) Detect(frame gocv.Mat) ([]Detection, error) {
	if frame.Empty() {
		return nil, errors.New("empty frame")
	}

	blobImg := gocv.BlobFromImage(frame, yoloScaleFactor, d.inputSize, yoloMean, true, false)
	defer blobImg.Close()

	d.net.SetInput(blobImg, yoloBlobName)
	outputs := d.net.ForwardLayers(d.layerNames)
	defer func() {
		for i := range outputs {
			_ = outputs[i].Close()
		}
	}()

	p := decodeParams{
		frameWidth:  float32(frame.Cols()),
		frameHeight: float32(frame.Rows()),
		inputWidth:  float32(d.inputSize.X),
		inputHeight: float32(d.inputSize.Y),
		threshold:   d.settings.ConfThreshold,
		classes:     d.classes,
		allowed:     d.allowed,
	}

	var candidates []candidate
	switch d.settings.Layout {
	case LayoutDarknet:
		for i := range outputs {
			data, err := outputs[i].DataPtrFloat32()
			if err != nil {
				return nil, errors.Wrap(err, "Can't extract data")
			}
			candidates = append(candidates, decodeDarknet(data, outputs[i].Cols(), p)...)
		}
	default:
		if len(outputs) == 0 {
			return nil, errors.New("network produced no output")
		}
		dims := outputs[0].Size()
		if len(dims) != 3 {
			return nil, errors.Errorf("unexpected output shape %v", dims)
		}
		data, err := outputs[0].DataPtrFloat32()
		if err != nil {
			return nil, errors.Wrap(err, "Can't extract data")
		}
		candidates, err = decodeYOLOv8(data, dims[1], dims[2], p)
		if err != nil {
			return nil, err
		}
	}

	kept := nonMaxSuppression(candidates, d.settings.ConfThreshold, d.settings.NmsThreshold)
	frameRect := image.Rect(0, 0, frame.Cols(), frame.Rows())
	detections := make([]Detection, 0, len(kept))
	for _, c := range kept {
		detections = append(detections, Detection{
			Box:        clampRect(c.box, frameRect),
			ClassID:    c.classID,
			ClassName:  d.classes.Name(c.classID),
			Confidence: c.confidence,
		})
	}
	return detections, nil
}

// Close Free memory for the network
func (d *NetDetector) Close() error {
	return d.net.Close()
}

// SharedDetector serialises access to a detector that is not safe for concurrent use
type SharedDetector struct {
	mu       sync.Mutex
	detector Detector
}

// NewSharedDetector wraps d
func NewSharedDetector(d Detector) *SharedDetector {
	return &SharedDetector{detector: d}
}

// Detect delegates under the lock
func (s *SharedDetector) Detect(frame gocv.Mat) ([]Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector.Detect(frame)
}

type candidate struct {
	classID    int
	confidence float32
	box        image.Rectangle
}

type decodeParams struct {
	frameWidth, frameHeight float32
	inputWidth, inputHeight float32
	threshold               float32
	classes                 ClassList
	// nil accepts every class
	allowed map[int]bool
}

func (p decodeParams) accept(classID int, confidence float32) bool {
	if !p.classes.Valid(classID) || confidence < p.threshold {
		return false
	}
	return p.allowed == nil || p.allowed[classID]
}

func decodeDarknet(data []float32, cols int, p decodeParams) []candidate {
	if cols <= 5 {
		return nil
	}
	var out []candidate
	for j := 0; j+cols <= len(data); j += cols {
		row := data[j : j+cols]
		classID, confidence := getClassIDAndConfidence(row[5:])
		confidence = clampUnit(confidence)
		if !p.accept(classID, confidence) {
			continue
		}
		out = append(out, candidate{
			classID:    classID,
			confidence: confidence,
			box:        calculateBoundingBox(p.frameWidth, p.frameHeight, row),
		})
	}
	return out
}

// decodeYOLOv8 reads the attribute-major [attrs x count] matrix
func decodeYOLOv8(data []float32, attrs, count int, p decodeParams) ([]candidate, error) {
	if attrs <= 4 || count <= 0 || len(data) < attrs*count {
		return nil, errors.Errorf("malformed yolov8 output: %d values for %dx%d", len(data), attrs, count)
	}
	sx := p.frameWidth / p.inputWidth
	sy := p.frameHeight / p.inputHeight

	var out []candidate
	scores := make([]float32, attrs-4)
	for i := 0; i < count; i++ {
		for k := range scores {
			scores[k] = data[(4+k)*count+i]
		}
		classID, confidence := getClassIDAndConfidence(scores)
		confidence = clampUnit(confidence)
		if !p.accept(classID, confidence) {
			continue
		}
		cx, cy := data[i]*sx, data[count+i]*sy
		w, h := data[2*count+i]*sx, data[3*count+i]*sy
		left, top := int(cx-w/2), int(cy-h/2)
		out = append(out, candidate{
			classID:    classID,
			confidence: confidence,
			box:        image.Rect(left, top, left+int(w), top+int(h)),
		})
	}
	return out, nil
}

// nonMaxSuppression runs NMS per class, so overlapping objects of different classes both survive
func nonMaxSuppression(candidates []candidate, confidenceThreshold, nmsThreshold float32) []candidate {
	if len(candidates) == 0 {
		return nil
	}
	byClass := make(map[int][]candidate)
	for _, c := range candidates {
		byClass[c.classID] = append(byClass[c.classID], c)
	}
	classIDs := make([]int, 0, len(byClass))
	for id := range byClass {
		classIDs = append(classIDs, id)
	}
	sort.Ints(classIDs)

	kept := make([]candidate, 0, len(candidates))
	for _, id := range classIDs {
		kept = append(kept, suppressClass(byClass[id], confidenceThreshold, nmsThreshold)...)
	}
	return kept
}

func suppressClass(candidates []candidate, confidenceThreshold, nmsThreshold float32) []candidate {
	bboxes := make([]image.Rectangle, len(candidates))
	confidences := make([]float32, len(candidates))
	for i, c := range candidates {
		bboxes[i] = c.box
		confidences[i] = c.confidence
	}

	indices := make([]int, len(bboxes))
	for i := range indices {
		indices[i] = -1
	}
	gocv.NMSBoxes(bboxes, confidences, confidenceThreshold, nmsThreshold, indices)
	return keptIndices(candidates, indices)
}

// keptIndices maps NMSBoxes output back to candidates. Kept indices fill the
// front of the slice, unused slots keep their -1.
func keptIndices(candidates []candidate, indices []int) []candidate {
	kept := make([]candidate, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(candidates) {
			continue
		}
		kept = append(kept, candidates[idx])
	}
	return kept
}

func allowedClassIDs(classes ClassList, targets []string) map[int]bool {
	if len(targets) == 0 {
		return nil
	}
	allowed := make(map[int]bool, len(targets))
	for id, name := range classes {
		for _, t := range targets {
			if t == name {
				allowed[id] = true
			}
		}
	}
	return allowed
}

func getClassIDAndConfidence(x []float32) (int, float32) {
	res := 0
	max := float32(0.0)
	for i, y := range x {
		if y > max {
			max = y
			res = i
		}
	}
	return res, max
}

func calculateBoundingBox(frameWidth, frameHeight float32, row []float32) image.Rectangle {
	if len(row) < 4 {
		return image.Rect(0, 0, 0, 0)
	}
	centerX := int(row[0] * frameWidth)
	centerY := int(row[1] * frameHeight)
	width := int(row[2] * frameWidth)
	height := int(row[3] * frameHeight)
	left := centerX - width/2
	top := centerY - height/2
	return image.Rect(left, top, left+width, top+height)
}

func clampUnit(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
