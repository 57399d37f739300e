package vision

import (
	"fmt"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Face is one RetinaFace detection in original image coordinates.
type Face struct {
	Box        Box
	Confidence float32
}

// Box is x1, y1, x2, y2 in pixels.
type Box [4]float32

func (b Box) Area() float32 {
	w, h := b[2]-b[0], b[3]-b[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

const (
	detInputSize     = 640
	anchorsPerCell   = 2
	nmsIoUThreshold  = 0.4
	detInputName     = "input.1"
	detectorFileName = "det_10g.onnx"
)

// det_10g emits scores, boxes and landmarks per stride, without a batch
// dimension. Landmarks are not used for verification and are not bound.
var detStrides = []struct {
	stride      int
	scores, box string
}{
	{8, "448", "451"},
	{16, "471", "474"},
	{32, "494", "497"},
}

// Detector runs RetinaFace. It is not safe for concurrent use.
type Detector struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	scores    []*ort.Tensor[float32]
	boxes     []*ort.Tensor[float32]
	threshold float32
}

func NewDetector(modelPath string, threshold float32) (*Detector, error) {
	d := &Detector{threshold: threshold}

	var err error
	d.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, detInputSize, detInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	var names []string
	var values []ort.Value
	for _, s := range detStrides {
		cells := int64(detInputSize/s.stride) * int64(detInputSize/s.stride) * anchorsPerCell
		sc, err := ort.NewEmptyTensor[float32](ort.NewShape(cells, 1))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create score tensor (stride %d): %w", s.stride, err)
		}
		d.scores = append(d.scores, sc)
		bx, err := ort.NewEmptyTensor[float32](ort.NewShape(cells, 4))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create box tensor (stride %d): %w", s.stride, err)
		}
		d.boxes = append(d.boxes, bx)
	}
	for i, s := range detStrides {
		names = append(names, s.scores)
		values = append(values, d.scores[i])
	}
	for i, s := range detStrides {
		names = append(names, s.box)
		values = append(values, d.boxes[i])
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{detInputName}, names,
		[]ort.Value{d.input}, values,
		nil,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return d, nil
}

// Detect takes a CHW tensor of the model's input size and returns faces
// scaled to origW x origH, strongest first.
func (d *Detector) Detect(chw []float32, origW, origH int) ([]Face, error) {
	copy(d.input.GetData(), chw)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	var faces []Face
	for i, s := range detStrides {
		faces = append(faces, decodeStride(d.scores[i].GetData(), d.boxes[i].GetData(),
			s.stride, d.threshold, origW, origH)...)
	}
	return suppress(faces, nmsIoUThreshold), nil
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	for _, t := range append(d.scores, d.boxes...) {
		if t != nil {
			t.Destroy()
		}
	}
}

// decodeStride turns one stride's anchor outputs into boxes. Box outputs are
// distances from the anchor centre in units of the stride.
func decodeStride(scores, boxes []float32, stride int, threshold float32, origW, origH int) []Face {
	cells := detInputSize / stride
	sx := float32(origW) / detInputSize
	sy := float32(origH) / detInputSize
	st := float32(stride)

	var faces []Face
	for i, score := range scores {
		if score < threshold || (i+1)*4 > len(boxes) {
			continue
		}
		cell := i / anchorsPerCell
		ax := float32(cell%cells) * st
		ay := float32(cell/cells) * st
		b := boxes[i*4 : i*4+4]
		faces = append(faces, Face{
			Box: Box{
				clamp((ax-b[0]*st)*sx, 0, float32(origW)),
				clamp((ay-b[1]*st)*sy, 0, float32(origH)),
				clamp((ax+b[2]*st)*sx, 0, float32(origW)),
				clamp((ay+b[3]*st)*sy, 0, float32(origH)),
			},
			Confidence: score,
		})
	}
	return faces
}

// suppress is greedy non-maximum suppression.
func suppress(faces []Face, iouThreshold float32) []Face {
	sort.SliceStable(faces, func(i, j int) bool { return faces[i].Confidence > faces[j].Confidence })

	var kept []Face
	for _, f := range faces {
		overlaps := false
		for _, k := range kept {
			if iou(f.Box, k.Box) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, f)
		}
	}
	return kept
}

func iou(a, b Box) float32 {
	inter := Box{max(a[0], b[0]), max(a[1], b[1]), min(a[2], b[2]), min(a[3], b[3])}.Area()
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
