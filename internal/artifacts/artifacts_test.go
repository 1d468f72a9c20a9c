package artifacts

import (
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	stripimg "github.com/ironsheep/strip-detect/internal/imaging"
)

func newTestBuffer(t *testing.T, w, h int, v uint8) *stripimg.PixelBuffer {
	t.Helper()
	buf, err := stripimg.NewPixelBuffer(w, h, 4)
	if err != nil {
		t.Fatalf("NewPixelBuffer failed: %v", err)
	}
	for i := range buf.Pix {
		buf.Pix[i] = v
	}
	return buf
}

func TestWriter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	w, err := NewWriter(dir, 90)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	w.now = func() time.Time { return time.UnixMilli(1700000000123) }

	mask := &stripimg.EdgeMask{Width: 8, Height: 6, Pix: make([]uint8, 48)}
	mask.Pix[10] = 255
	set := Set{
		Edges:     mask,
		Blurred:   newTestBuffer(t, 8, 6, 100),
		Balanced:  newTestBuffer(t, 8, 6, 200),
		Annotated: newTestBuffer(t, 8, 6, 50),
	}

	paths, err := w.Write(set)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := map[string]string{
		paths.Edges:     "edge-detection-1700000000123.jpg",
		paths.Blurred:   "blurred-1700000000123.jpg",
		paths.Balanced:  "balanced-1700000000123.jpg",
		paths.Annotated: "annotated-1700000000123.png",
	}
	for path, name := range want {
		if filepath.Base(path) != name {
			t.Errorf("got file %s, want %s", filepath.Base(path), name)
		}
		if filepath.Dir(path) != dir {
			t.Errorf("%s written outside %s", path, dir)
		}
	}

	f, err := os.Open(paths.Balanced)
	if err != nil {
		t.Fatalf("open balanced: %v", err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("balanced artifact is not a JPEG: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 6 {
		t.Errorf("balanced artifact is %v", img.Bounds())
	}

	pf, err := os.Open(paths.Annotated)
	if err != nil {
		t.Fatalf("open annotated: %v", err)
	}
	defer pf.Close()
	if _, err := png.Decode(pf); err != nil {
		t.Fatalf("annotated artifact is not a PNG: %v", err)
	}
}

func TestWriter_SkipsNil(t *testing.T) {
	w, err := NewWriter(t.TempDir(), 75)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	paths, err := w.Write(Set{Balanced: newTestBuffer(t, 4, 4, 10)})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if paths.Edges != "" || paths.Blurred != "" || paths.Annotated != "" {
		t.Errorf("unexpected paths %+v", paths)
	}

	entries, err := os.ReadDir(w.Dir())
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file, got %d", len(entries))
	}
}

func TestWriter_ReplacesExisting(t *testing.T) {
	w, err := NewWriter(t.TempDir(), 90)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	w.now = func() time.Time { return time.UnixMilli(5) }

	first, err := w.Write(Set{Blurred: newTestBuffer(t, 4, 4, 10)})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	second, err := w.Write(Set{Blurred: newTestBuffer(t, 16, 16, 10)})
	if err != nil {
		t.Fatalf("second Write failed: %v", err)
	}
	if first.Blurred != second.Blurred {
		t.Fatalf("expected the same name, got %s and %s", first.Blurred, second.Blurred)
	}

	f, err := os.Open(second.Blurred)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatalf("DecodeConfig failed: %v", err)
	}
	if cfg.Width != 16 {
		t.Errorf("file not replaced: width %d", cfg.Width)
	}
}

func TestNewWriter_Invalid(t *testing.T) {
	if _, err := NewWriter("", 90); err == nil {
		t.Error("expected error for empty directory")
	}
	if _, err := NewWriter(t.TempDir(), 0); err == nil {
		t.Error("expected error for quality 0")
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := NewWriter(filepath.Join(file, "sub"), 90); err == nil {
		t.Error("expected error when the directory cannot be created")
	}
}

func TestWriter_SameMillisecondDistinctIDs(t *testing.T) {
	w, err := NewWriter(t.TempDir(), 90)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	w.now = func() time.Time { return time.UnixMilli(42) }

	first, err := w.Write(Set{ID: "1001", Blurred: newTestBuffer(t, 4, 4, 10), Balanced: newTestBuffer(t, 4, 4, 20)})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	second, err := w.Write(Set{ID: "1002", Blurred: newTestBuffer(t, 4, 4, 30), Balanced: newTestBuffer(t, 4, 4, 40)})
	if err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	if first.Blurred == second.Blurred || first.Balanced == second.Balanced {
		t.Fatalf("runs share files: %+v and %+v", first, second)
	}
	if got := filepath.Base(first.Blurred); got != "blurred-42-1001.jpg" {
		t.Errorf("file name: got %s, want blurred-42-1001.jpg", got)
	}

	entries, err := os.ReadDir(w.Dir())
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("expected 4 files, got %d", len(entries))
	}
}

func TestWriter_InvalidID(t *testing.T) {
	w, err := NewWriter(t.TempDir(), 90)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	for _, id := range []string{"../x", "a/b", "a b", "a.b"} {
		if _, err := w.Write(Set{ID: id, Blurred: newTestBuffer(t, 4, 4, 10)}); err == nil {
			t.Errorf("ID %q: expected error", id)
		}
	}
	entries, err := os.ReadDir(w.Dir())
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("invalid IDs wrote %d files", len(entries))
	}
}
