package detector

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Annotate draws detection boxes and confidence labels on a tile image
// and returns a re-encoded JPEG buffer. Used for the snapshot archive.
func Annotate(imageBytes []byte, detections []RawDetection) ([]byte, error) {
	red := color.RGBA{R: 255, G: 0, B: 0, A: 0}

	mat, err := gocv.IMDecode(imageBytes, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %v", err)
	}
	defer mat.Close()

	for _, d := range detections {
		rect := image.Rect(int(d.X1), int(d.Y1), int(d.X2), int(d.Y2))
		if err := gocv.Rectangle(&mat, rect, red, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %v", err)
		}

		label := fmt.Sprintf("%s (%.2f)", d.Class, d.Confidence)
		pt := image.Pt(int(d.X1), int(d.Y1)-5)
		if err := gocv.PutText(&mat, label, pt, gocv.FontHersheySimplex, 0.5, red, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %v", err)
		}
	}

	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %v", err)
	}
	defer buf.Close()

	annotated := make([]byte, len(buf.GetBytes()))
	copy(annotated, buf.GetBytes())

	return annotated, nil
}
