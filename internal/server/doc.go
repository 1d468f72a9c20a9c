// Package server exposes the strip reader over HTTP and over MCP (Model
// Context Protocol).
//
// # HTTP
//
// Service serves the routes used by the strip reader web client:
//
//   - POST /detect-colour: body {"image": <base64>, "width": w, "height": h}.
//     Returns the edge, blurred and balanced images as base64 JPEG together
//     with the corrected marker colours ("colour") and the white point.
//   - GET /readings and GET /readings/{id}: past results, when a readings
//     store is configured.
//   - GET /metrics: analysis slot pool counters.
//   - GET /healthz: liveness.
//
// Failures are answered with {"error": <message>}. Clients only ever see a
// fixed message; the cause and its error kind are logged with the request
// id. Every response allows any origin, and OPTIONS pre-flight requests are
// answered with 204.
//
// At most MaxConcurrent pipelines run at once. A request that cannot get a
// slot within AcquireTimeout is answered with 503.
//
// # MCP
//
// Server speaks JSON-RPC 2.0 over stdio, one request per line:
//
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// Tools:
//   - strip_detect_colours: full pipeline on an image file
//   - strip_edge_detect: edge mask as base64 PNG
//   - strip_white_balance: retinex correction against a chosen point
//
// Images are decoded once and cached by path for the life of the process.
// Tool failures are returned as JSON-RPC error -32000 with the Go error
// string as data.
package server
