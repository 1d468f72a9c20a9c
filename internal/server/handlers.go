package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ironsheep/strip-detect/internal/imaging"
	"github.com/ironsheep/strip-detect/internal/models"
	"github.com/ironsheep/strip-detect/internal/pipeline"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "strip_detect_colours").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.log.Info().Err(err).
			Str("tool", params.Name).
			Str("kind", imaging.Kind(err)).
			Msg("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Fills unset parameters from the server's pipeline parameters
//  3. Loads the image through the cache
//  4. Runs the pipeline or a single stage
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "strip_detect_colours":
		return s.handleDetectColours(args)
	case "strip_edge_detect":
		return s.handleEdgeDetect(args)
	case "strip_white_balance":
		return s.handleWhiteBalance(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return fmt.Errorf("missing arguments")
	}
	return json.Unmarshal(args, v)
}

type edgeArgs struct {
	BlurRadius    float64 `json:"blur_radius"`
	ThresholdLow  float64 `json:"threshold_low"`
	ThresholdHigh float64 `json:"threshold_high"`
}

// apply overrides the non-zero arguments.
func (a edgeArgs) apply(p imaging.EdgeParams) imaging.EdgeParams {
	if a.BlurRadius != 0 {
		p.BlurRadius = a.BlurRadius
	}
	if a.ThresholdLow != 0 {
		p.ThresholdLow = a.ThresholdLow
	}
	if a.ThresholdHigh != 0 {
		p.ThresholdHigh = a.ThresholdHigh
	}
	return p
}

// === Pipeline Handlers ===

type detectColoursArgs struct {
	Path string `json:"path"`
	edgeArgs
	MinRadius     int   `json:"min_radius"`
	MaxRadius     int   `json:"max_radius"`
	VoteThreshold int   `json:"vote_threshold"`
	Seed          int64 `json:"seed"`
}

// DetectColoursResult is the strip_detect_colours result.
type DetectColoursResult struct {
	Width      int                      `json:"width"`
	Height     int                      `json:"height"`
	Candidates int                      `json:"candidates"`
	Circles    []models.Circle          `json:"circles"`
	WhitePoint models.Point             `json:"white_point"`
	Scale      imaging.ScaleFactors     `json:"scale"`
	Colour     []models.ColorSample     `json:"colour"`
	Timings    models.ProcessingTimings `json:"timings"`
	Params     pipeline.Params          `json:"params"`
}

func (s *Server) handleDetectColours(args json.RawMessage) (interface{}, error) {
	var a detectColoursArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	params := s.pipeline.Params()
	params.Edge = a.edgeArgs.apply(params.Edge)
	if a.MinRadius != 0 {
		params.Hough.MinRadius = a.MinRadius
	}
	if a.MaxRadius != 0 {
		params.Hough.MaxRadius = a.MaxRadius
	}
	if a.VoteThreshold != 0 {
		params.Hough.VoteThreshold = a.VoteThreshold
	}
	if a.Seed != 0 {
		params.Seed = a.Seed
	}

	p := s.pipeline
	if params != p.Params() {
		var err error
		if p, err = pipeline.New(params, s.log); err != nil {
			return nil, err
		}
	}

	buf, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	res, err := p.Run(context.Background(), buf)
	if err != nil {
		return nil, err
	}

	return &DetectColoursResult{
		Width:      buf.Width,
		Height:     buf.Height,
		Candidates: res.Candidates,
		Circles:    res.Circles,
		WhitePoint: res.WhitePoint,
		Scale:      res.Scale,
		Colour:     res.Samples,
		Timings:    res.Timings,
		Params:     params,
	}, nil
}

type edgeDetectArgs struct {
	Path string `json:"path"`
	edgeArgs
}

func (s *Server) handleEdgeDetect(args json.RawMessage) (interface{}, error) {
	var a edgeDetectArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	params := a.edgeArgs.apply(s.pipeline.Params().Edge)

	buf, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.EdgeDetect(buf.ToImage(), params)
}

type whiteBalanceArgs struct {
	Path string `json:"path"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

// WhiteBalanceResult is the strip_white_balance result.
type WhiteBalanceResult struct {
	WhitePoint  models.Point         `json:"white_point"`
	Reference   models.ColorSample   `json:"reference"`
	Scale       imaging.ScaleFactors `json:"scale"`
	ImageBase64 string               `json:"image_base64"`
	MimeType    string               `json:"mime_type"`
}

func (s *Server) handleWhiteBalance(args json.RawMessage) (interface{}, error) {
	var a whiteBalanceArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	buf, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	blurred, err := imaging.ColourBlur(buf, s.pipeline.Params().ColourBlurRadius)
	if err != nil {
		return nil, err
	}

	white := models.Point{X: a.X, Y: a.Y}
	ref, err := imaging.SamplePoint(blurred, white.X, white.Y)
	if err != nil {
		return nil, err
	}
	balanced, scale, err := imaging.RetinexCorrect(blurred, white)
	if err != nil {
		return nil, err
	}
	encoded, err := imaging.EncodeJPEGBase64(balanced, s.quality)
	if err != nil {
		return nil, err
	}

	return &WhiteBalanceResult{
		WhitePoint:  white,
		Reference:   ref,
		Scale:       scale,
		ImageBase64: encoded,
		MimeType:    "image/jpeg",
	}, nil
}
