package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ironsheep/strip-detect/internal/detection"
	"github.com/ironsheep/strip-detect/internal/imaging"
	"github.com/ironsheep/strip-detect/internal/pipeline"
)

var (
	background = color.RGBA{200, 180, 160, 255}
	smallInk   = color.RGBA{40, 72, 160, 255}
	bigInk     = color.RGBA{160, 40, 40, 255}
)

type disc struct {
	cx, cy, r int
	c         color.Color
}

// createStripImage draws solid discs on a tinted background
func createStripImage(width, height int, discs ...disc) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, background)
			for _, d := range discs {
				dx, dy := x-d.cx, y-d.cy
				if dx*dx+dy*dy <= d.r*d.r {
					img.Set(x, y, d.c)
				}
			}
		}
	}
	return img
}

// createTestStrip has a small blue marker at (50,60) r15 and a large red
// one at (130,60) r25, which puts the white point near (180,60).
func createTestStrip() *image.RGBA {
	return createStripImage(200, 120,
		disc{cx: 50, cy: 60, r: 15, c: smallInk},
		disc{cx: 130, cy: 60, r: 25, c: bigInk},
	)
}

// createTestImageFile writes img as PNG into a test directory and returns its path
func createTestImageFile(t *testing.T, img image.Image) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "strip.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

func encodePNGBase64(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func testPipelineParams() pipeline.Params {
	p := pipeline.DefaultParams()
	p.Hough = detection.HoughParams{MinRadius: 10, MaxRadius: 30, VoteThreshold: 120, Workers: 2}
	return p
}

func newTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(testPipelineParams(), zerolog.Nop())
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}
	return p
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(newTestPipeline(t), imaging.Decoder{}, imaging.DefaultJPEGQuality, zerolog.Nop())
}

func nearByte(a uint8, b int, tol int) bool {
	d := int(a) - b
	return d >= -tol && d <= tol
}

func toolCall(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPResponse {
	t.Helper()

	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	paramsJSON, _ := json.Marshal(params)

	req := &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	}
	resp := s.handleRequest(req)
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// toolText unwraps the JSON text content of a successful tool call into v
func toolText(t *testing.T, resp *MCPResponse, v interface{}) {
	t.Helper()

	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("content: got %#v", result["content"])
	}
	if content[0]["type"] != "text" {
		t.Errorf("content type: got %v, want text", content[0]["type"])
	}
	text, _ := content[0]["text"].(string)
	if err := json.Unmarshal([]byte(text), v); err != nil {
		t.Fatalf("failed to parse tool result %q: %v", text, err)
	}
}

func TestHandleToolsCall_DetectColours(t *testing.T) {
	s := newTestServer(t)
	imgPath := createTestImageFile(t, createTestStrip())

	resp := toolCall(t, s, "strip_detect_colours", map[string]interface{}{"path": imgPath})

	var result DetectColoursResult
	toolText(t, resp, &result)

	if result.Width != 200 || result.Height != 120 {
		t.Errorf("size: got %dx%d, want 200x120", result.Width, result.Height)
	}
	if len(result.Circles) != 2 || len(result.Colour) != 2 {
		t.Fatalf("expected 2 circles and 2 colours, got %d and %d", len(result.Circles), len(result.Colour))
	}
	if math.Abs(result.Circles[0].X-50) > 2 || math.Abs(result.Circles[1].X-130) > 2 {
		t.Errorf("circles: got %+v", result.Circles)
	}
	c := result.Colour[0]
	if !nearByte(c.Red, 51, 2) || !nearByte(c.Green, 102, 2) || !nearByte(c.Blue, 255, 2) {
		t.Errorf("small marker colour: got (%d,%d,%d), want about (51,102,255)", c.Red, c.Green, c.Blue)
	}
	if c.Hex == "" {
		t.Error("hex not filled in")
	}
	if result.Params.Hough.VoteThreshold != 120 {
		t.Errorf("params: got vote threshold %d, want 120", result.Params.Hough.VoteThreshold)
	}
}

func TestHandleToolsCall_DetectColoursOverrides(t *testing.T) {
	s := newTestServer(t)
	imgPath := createTestImageFile(t, createTestStrip())

	// Raising the threshold past the 360 possible votes leaves nothing to cluster
	resp := toolCall(t, s, "strip_detect_colours", map[string]interface{}{
		"path":           imgPath,
		"vote_threshold": 400,
	})
	if resp.Error == nil {
		t.Fatal("expected an error with an unreachable vote threshold")
	}
	if resp.Error.Code != -32000 {
		t.Errorf("Error.Code: got %d, want -32000", resp.Error.Code)
	}

	// An inverted radius range is rejected before the image is read
	resp = toolCall(t, s, "strip_detect_colours", map[string]interface{}{
		"path":       imgPath,
		"min_radius": 40,
	})
	if resp.Error == nil {
		t.Fatal("expected an error with min_radius above max_radius")
	}
}

func TestHandleToolsCall_EdgeDetect(t *testing.T) {
	s := newTestServer(t)
	imgPath := createTestImageFile(t, createTestStrip())

	resp := toolCall(t, s, "strip_edge_detect", map[string]interface{}{"path": imgPath})

	var result imaging.EdgeDetectResult
	toolText(t, resp, &result)

	if result.EdgePixels == 0 {
		t.Error("expected edge pixels")
	}
	if result.MimeType != "image/png" {
		t.Errorf("MimeType: got %s, want image/png", result.MimeType)
	}
	data, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("invalid png: %v", err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 120 {
		t.Errorf("edge image size: got %v", img.Bounds())
	}
}

func TestHandleToolsCall_WhiteBalance(t *testing.T) {
	s := newTestServer(t)
	imgPath := createTestImageFile(t, createTestStrip())

	resp := toolCall(t, s, "strip_white_balance", map[string]interface{}{
		"path": imgPath,
		"x":    180,
		"y":    60,
	})

	var result WhiteBalanceResult
	toolText(t, resp, &result)

	ref := result.Reference
	if !nearByte(ref.Red, 200, 1) || !nearByte(ref.Green, 180, 1) || !nearByte(ref.Blue, 160, 1) {
		t.Errorf("reference: got (%d,%d,%d), want about (200,180,160)", ref.Red, ref.Green, ref.Blue)
	}
	if math.Abs(result.Scale.B-255.0/160) > 0.02 {
		t.Errorf("blue scale: got %v, want about %v", result.Scale.B, 255.0/160)
	}

	data, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("invalid jpeg: %v", err)
	}
}

func TestHandleToolsCall_WhiteBalanceOutOfBounds(t *testing.T) {
	s := newTestServer(t)
	imgPath := createTestImageFile(t, createTestStrip())

	resp := toolCall(t, s, "strip_white_balance", map[string]interface{}{
		"path": imgPath,
		"x":    500,
		"y":    60,
	})
	if resp.Error == nil {
		t.Fatal("expected an error for a point outside the image")
	}
}

func TestHandleToolsCall_NonExistentFile(t *testing.T) {
	s := newTestServer(t)

	resp := toolCall(t, s, "strip_detect_colours", map[string]interface{}{
		"path": "/nonexistent/strip.png",
	})
	if resp.Error == nil {
		t.Fatal("expected an error for a missing file")
	}
	if resp.Error.Message != "Tool execution failed" {
		t.Errorf("Message: got %s", resp.Error.Message)
	}
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer(t)

	resp := toolCall(t, s, "image_ocr_full", map[string]interface{}{"path": "/tmp/x.png"})
	if resp.Error == nil || resp.Error.Code != -32000 {
		t.Fatalf("expected -32000 for an unknown tool, got %+v", resp.Error)
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t)

	req := &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	}
	resp := s.handleToolsCall(req)
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Fatalf("expected -32602, got %+v", resp.Error)
	}
}

func TestHandleToolsCall_CachesImage(t *testing.T) {
	s := newTestServer(t)
	imgPath := createTestImageFile(t, createTestStrip())

	toolCall(t, s, "strip_edge_detect", map[string]interface{}{"path": imgPath})
	toolCall(t, s, "strip_edge_detect", map[string]interface{}{"path": imgPath})

	if s.cache.Len() != 1 {
		t.Errorf("cache entries: got %d, want 1", s.cache.Len())
	}
}
