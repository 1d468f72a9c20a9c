// Package artifacts saves the intermediate images of a run to disk.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	stripimg "github.com/ironsheep/strip-detect/internal/imaging"
)

// Set holds the images of one run. Nil entries are skipped.
type Set struct {
	// ID is appended to every file name so concurrent runs never share
	// files. It may contain only letters, digits, '-' and '_'.
	ID string

	Edges     *stripimg.EdgeMask
	Blurred   *stripimg.PixelBuffer
	Balanced  *stripimg.PixelBuffer
	Annotated *stripimg.PixelBuffer
}

// Paths are the files written for one Set.
type Paths struct {
	Edges     string `json:"edges,omitempty"`
	Blurred   string `json:"blurred,omitempty"`
	Balanced  string `json:"balanced,omitempty"`
	Annotated string `json:"annotated,omitempty"`
}

// Writer writes artifact sets into one directory. File names carry the
// write time in Unix milliseconds and the set's ID; a file with the same
// name is replaced.
type Writer struct {
	dir     string
	quality int
	now     func() time.Time
}

// NewWriter creates dir if needed and returns a Writer that encodes JPEGs
// at the given quality.
func NewWriter(dir string, quality int) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory is empty")
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("jpeg quality %d out of range 1-100", quality)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &Writer{dir: dir, quality: quality, now: time.Now}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write saves every non-nil image of set as
//
//	edge-detection-<ts>-<id>.jpg  blurred-<ts>-<id>.jpg
//	balanced-<ts>-<id>.jpg        annotated-<ts>-<id>.png
//
// The "-<id>" part is omitted when ID is empty. The edge mask is written as
// grayscale in RGB. On error the files already written are left in place.
func (w *Writer) Write(set Set) (Paths, error) {
	if !validID(set.ID) {
		return Paths{}, fmt.Errorf("invalid artifact id %q", set.ID)
	}
	stem := fmt.Sprintf("%d", w.now().UnixMilli())
	if set.ID != "" {
		stem += "-" + set.ID
	}
	var paths Paths

	if set.Edges != nil {
		p, err := w.save(fmt.Sprintf("edge-detection-%s.jpg", stem), set.Edges.ToRGBA())
		if err != nil {
			return paths, err
		}
		paths.Edges = p
	}
	if set.Blurred != nil {
		p, err := w.save(fmt.Sprintf("blurred-%s.jpg", stem), set.Blurred)
		if err != nil {
			return paths, err
		}
		paths.Blurred = p
	}
	if set.Balanced != nil {
		p, err := w.save(fmt.Sprintf("balanced-%s.jpg", stem), set.Balanced)
		if err != nil {
			return paths, err
		}
		paths.Balanced = p
	}
	if set.Annotated != nil {
		p, err := w.save(fmt.Sprintf("annotated-%s.png", stem), set.Annotated)
		if err != nil {
			return paths, err
		}
		paths.Annotated = p
	}
	return paths, nil
}

func validID(id string) bool {
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// save encodes by file extension.
func (w *Writer) save(name string, buf *stripimg.PixelBuffer) (string, error) {
	if err := buf.Validate(); err != nil {
		return "", fmt.Errorf("artifact %s: %w", name, err)
	}
	path := filepath.Join(w.dir, name)
	if err := imaging.Save(buf.ToImage(), path, imaging.JPEGQuality(w.quality)); err != nil {
		return "", fmt.Errorf("failed to save artifact %s: %w", name, err)
	}
	return path, nil
}
