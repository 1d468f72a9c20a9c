package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file",
	}
}

func edgeProperties(props map[string]interface{}) map[string]interface{} {
	props["blur_radius"] = map[string]interface{}{
		"type":        "number",
		"description": "Gaussian blur radius applied before edge detection. Default from server configuration (1.0)",
	}
	props["threshold_low"] = map[string]interface{}{
		"type":        "number",
		"description": "Canny low hysteresis threshold. Default 100",
	}
	props["threshold_high"] = map[string]interface{}{
		"type":        "number",
		"description": "Canny high hysteresis threshold. Default 200",
	}
	return props
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name: "strip_detect_colours",
			Description: "Read a test strip photo: find the two round markers, white-balance the image against " +
				"the neutral patch beyond the larger marker, and return the corrected colour at each marker centre. " +
				"Markers are returned left to right.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": edgeProperties(map[string]interface{}{
					"path": pathProperty(),
					"min_radius": map[string]interface{}{
						"type":        "integer",
						"description": "Smallest marker radius in pixels. Default 10",
					},
					"max_radius": map[string]interface{}{
						"type":        "integer",
						"description": "Largest marker radius in pixels (exclusive). Default 60",
					},
					"vote_threshold": map[string]interface{}{
						"type":        "integer",
						"description": "Votes a centre must exceed to count as a candidate (out of 360). Default 130",
					},
					"seed": map[string]interface{}{
						"type":        "integer",
						"description": "Clustering seed. Default 1",
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "strip_edge_detect",
			Description: "Run the marker edge detector (grayscale, Gaussian blur, Canny) and return the edge mask as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": edgeProperties(map[string]interface{}{
					"path": pathProperty(),
				}),
				"required": []string{"path"},
			},
		},
		{
			Name: "strip_white_balance",
			Description: "White-balance an image so the colour at (x, y) becomes neutral white. " +
				"The image is colour-blurred first, as in strip_detect_colours. Returns the scale factors and a base64 JPEG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"x": map[string]interface{}{
						"type":        "integer",
						"description": "X coordinate of the white reference (0-based, from left)",
					},
					"y": map[string]interface{}{
						"type":        "integer",
						"description": "Y coordinate of the white reference (0-based, from top)",
					},
				},
				"required": []string{"path", "x", "y"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
