package detector

import (
	"errors"
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"polescan/internal/logger"
)

// ErrInference marks model/runtime failures. Zero detections is not an
// error; a tile with no poles is a valid outcome.
var ErrInference = errors.New("inference failed")

// RawDetection is one model output in tile pixel space.
type RawDetection struct {
	Class      string
	Confidence float64
	X1         float64
	Y1         float64
	X2         float64
	Y2         float64
}

// Runner maps an image tile to detections. Implementations own the
// confidence threshold and target class filter; callers receive only
// detections that passed it. Tests substitute fakes.
type Runner interface {
	Detect(imageBytes []byte) ([]RawDetection, error)
}

// DNNRunner runs an SSD-style detection network through gocv.
type DNNRunner struct {
	net         gocv.Net
	modelPath   string
	configPath  string
	threshold   float64
	targetClass string
	classLabels map[int]string
	logger      *logger.Logger
}

// NewDNNRunner loads the network from disk. Confidence threshold and the
// target class filter are configuration, not constants.
func NewDNNRunner(modelPath, configPath string, threshold float64, targetClass string, logger *logger.Logger) (*DNNRunner, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("model config file not found: %s", configPath)
		}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	logger.Info("Detection network initialized from %s", modelPath)

	return &DNNRunner{
		net:         net,
		modelPath:   modelPath,
		configPath:  configPath,
		threshold:   threshold,
		targetClass: targetClass,
		classLabels: map[int]string{1: "pole"},
		logger:      logger,
	}, nil
}

// Close releases the network.
func (r *DNNRunner) Close() {
	r.net.Close()
}

// Detect decodes the tile image, runs the network and returns detections
// above the configured threshold for the target class.
func (r *DNNRunner) Detect(imageBytes []byte) ([]RawDetection, error) {
	if r.net.Empty() {
		return nil, fmt.Errorf("%w: detection network not initialized", ErrInference)
	}

	mat, err := gocv.IMDecode(imageBytes, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", ErrInference, err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("%w: decoded image is empty", ErrInference)
	}

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	r.net.SetInput(blob, "")

	output := r.net.Forward("")
	defer output.Close()

	imgW := float64(mat.Cols())
	imgH := float64(mat.Rows())

	// Output rows: [batch_id, class_id, confidence, x1, y1, x2, y2], coords normalized 0-1.
	outputReshaped := output.Reshape(1, output.Total()/7)
	defer outputReshaped.Close()

	raw := make([]RawDetection, 0)
	for i := 0; i < outputReshaped.Rows(); i++ {
		confidence := float64(outputReshaped.GetFloatAt(i, 2))
		classID := int(outputReshaped.GetFloatAt(i, 1))

		raw = append(raw, RawDetection{
			Class:      r.classLabel(classID),
			Confidence: confidence,
			X1:         clamp(float64(outputReshaped.GetFloatAt(i, 3)), 0, 1) * imgW,
			Y1:         clamp(float64(outputReshaped.GetFloatAt(i, 4)), 0, 1) * imgH,
			X2:         clamp(float64(outputReshaped.GetFloatAt(i, 5)), 0, 1) * imgW,
			Y2:         clamp(float64(outputReshaped.GetFloatAt(i, 6)), 0, 1) * imgH,
		})
	}

	results := Filter(raw, r.threshold, r.targetClass)

	if len(results) > 0 {
		r.logger.Info("Detected %d pole candidate(s) in tile image", len(results))
	}

	return results, nil
}

// Filter keeps detections at or above the threshold matching the target
// class. An empty target class keeps every class.
func Filter(detections []RawDetection, threshold float64, targetClass string) []RawDetection {
	results := make([]RawDetection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence < threshold {
			continue
		}
		if targetClass != "" && d.Class != targetClass {
			continue
		}
		results = append(results, d)
	}
	return results
}

// classLabel maps model class IDs to names.
func (r *DNNRunner) classLabel(classID int) string {
	if label, exists := r.classLabels[classID]; exists {
		return label
	}
	return fmt.Sprintf("class%d", classID)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
