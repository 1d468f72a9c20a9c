package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality matches the quality used for every saved artifact.
const DefaultJPEGQuality = 90

// EncodeJPEG encodes buf as JPEG. Alpha is dropped by the encoder.
func EncodeJPEG(buf *PixelBuffer, quality int) ([]byte, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("%w: jpeg quality %d", ErrInvalidInput, quality)
	}
	var out bytes.Buffer
	if err := imaging.Encode(&out, buf.ToImage(), imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

// EncodeJPEGBase64 encodes buf as JPEG and returns it base64 encoded.
func EncodeJPEGBase64(buf *PixelBuffer, quality int) (string, error) {
	data, err := EncodeJPEG(buf, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return out.Bytes(), nil
}
