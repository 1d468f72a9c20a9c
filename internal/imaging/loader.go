package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// Decoder turns encoded image bytes into a PixelBuffer.
type Decoder struct {
	// AutoOrient applies the EXIF orientation tag of JPEG input.
	AutoOrient bool

	// MaxPixels rejects images with more than this many pixels before
	// decoding. Zero means no limit.
	MaxPixels int
}

// Decode decodes data in any registered format (JPEG, PNG, GIF, BMP, TIFF,
// WebP) and returns a 4-channel buffer and the format name.
func (d Decoder) Decode(data []byte) (*PixelBuffer, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty image data", ErrInvalidInput)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to read image header: %v", ErrInvalidInput, err)
	}
	if d.MaxPixels > 0 && cfg.Width*cfg.Height > d.MaxPixels {
		return nil, "", fmt.Errorf("%w: image %dx%d exceeds %d pixels",
			ErrInvalidInput, cfg.Width, cfg.Height, d.MaxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(d.AutoOrient))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to decode image: %v", ErrInvalidInput, err)
	}

	buf, err := FromImage(img)
	if err != nil {
		return nil, "", err
	}
	return buf, format, nil
}

// DecodeBase64 decodes a base64 image payload. A "data:<mime>;base64,"
// prefix is accepted and stripped.
func (d Decoder) DecodeBase64(payload string) (*PixelBuffer, string, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		if i := strings.Index(payload, ","); i >= 0 {
			payload = payload[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid base64 image: %v", ErrInvalidInput, err)
	}
	return d.Decode(data)
}

// Open reads and decodes an image file.
func (d Decoder) Open(path string) (*PixelBuffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	buf, _, err := d.Decode(data)
	return buf, err
}

// ImageCache provides thread-safe caching of decoded images keyed by path.
//
// Once an image is loaded, subsequent Load calls for the same path return
// the cached buffer without disk I/O. Cached buffers are shared, so callers
// must treat them as read-only; every pipeline stage already does.
//
// Cached images remain in memory until explicitly removed via Evict or Clear.
type ImageCache struct {
	mu      sync.RWMutex
	decoder Decoder
	images  map[string]*PixelBuffer
}

// NewImageCache creates an empty cache that decodes with d.
func NewImageCache(d Decoder) *ImageCache {
	return &ImageCache{
		decoder: d,
		images:  make(map[string]*PixelBuffer),
	}
}

// Load retrieves an image from the cache or decodes it from disk.
//
// The image is cached using the exact path string provided. Different paths
// to the same file (e.g., relative vs absolute) result in separate entries.
func (c *ImageCache) Load(path string) (*PixelBuffer, error) {
	c.mu.RLock()
	if buf, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return buf, nil
	}
	c.mu.RUnlock()

	buf, err := c.decoder.Open(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = buf
	c.mu.Unlock()

	return buf, nil
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]*PixelBuffer)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
// If the path is not in the cache, this method does nothing.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}
