package live

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
)

// DefaultJPEGQuality is the encoder quality used for sampled frames.
const DefaultJPEGQuality = 80

// EncodeFrame encodes img as a JPEG data URL, the frame format the analysis
// endpoint accepts.
func EncodeFrame(img image.Image, quality int) (string, error) {
	if img == nil {
		return "", fmt.Errorf("encoding frame: nil image")
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("encoding frame: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
