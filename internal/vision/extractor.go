package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/votegate/internal/biometric"
	"github.com/your-org/votegate/internal/config"
)

var ErrModelsUnavailable = errors.New("face models unavailable")

// Extractor turns a capture into a face template. The ONNX environment and
// both sessions are created on first use; Run calls are serialized because
// the sessions own fixed input and output tensors.
type Extractor struct {
	cfg config.VisionConfig

	once    sync.Once
	initErr error

	mu       sync.Mutex
	detector *Detector
	embedder *Embedder
}

func NewExtractor(cfg config.VisionConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// ExtractTemplate returns nil, nil when no face is found.
func (e *Extractor) ExtractTemplate(data []byte) (biometric.Template, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", biometric.ErrUndecodableImage, err)
	}
	if err := e.init(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detector == nil {
		return nil, fmt.Errorf("%w: extractor closed", ErrModelsUnavailable)
	}

	faces, err := e.detector.Detect(toCHW(img, detInputSize, detMean, detStd), b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, nil
	}

	// faces are sorted by confidence
	crop := cropFace(img, faces[0].Box)
	if crop == nil {
		return nil, nil
	}
	return e.embedder.Embed(toCHW(crop, embInputSize, embMean, embStd))
}

// Warmup loads the models eagerly so the first vote does not pay for it.
func (e *Extractor) Warmup() error {
	return e.init()
}

func (e *Extractor) init() error {
	e.once.Do(func() {
		lib := e.cfg.RuntimeLibrary
		if lib == "" {
			lib = defaultRuntimeLibrary()
		}
		ort.SetSharedLibraryPath(lib)
		if !ort.IsInitialized() {
			if err := ort.InitializeEnvironment(); err != nil {
				e.initErr = fmt.Errorf("%w: init onnx runtime: %v", ErrModelsUnavailable, err)
				return
			}
		}

		detPath := filepath.Join(e.cfg.ModelsDir, detectorFileName)
		slog.Info("loading detection model", "path", detPath)
		det, err := NewDetector(detPath, float32(e.cfg.DetectionThreshold))
		if err != nil {
			e.initErr = fmt.Errorf("%w: %v", ErrModelsUnavailable, err)
			return
		}

		embPath := filepath.Join(e.cfg.ModelsDir, embedderFileName)
		slog.Info("loading embedding model", "path", embPath)
		emb, err := NewEmbedder(embPath)
		if err != nil {
			det.Close()
			e.initErr = fmt.Errorf("%w: %v", ErrModelsUnavailable, err)
			return
		}

		e.mu.Lock()
		e.detector, e.embedder = det, emb
		e.mu.Unlock()
		slog.Info("face models ready")
	})
	return e.initErr
}

// Close releases the sessions and the ONNX environment.
func (e *Extractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detector != nil {
		e.detector.Close()
		e.detector = nil
	}
	if e.embedder != nil {
		e.embedder.Close()
		e.embedder = nil
	}
	if ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
}

func defaultRuntimeLibrary() string {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
