// Package imaging provides the pixel-level stages of the strip reader.
//
// This package holds the PixelBuffer and EdgeMask types and the operations
// that read or rewrite pixels: edge extraction, the colour-blur branch,
// retinex white balance, colour sampling, codecs and a debug overlay.
// Geometry (circle voting, clustering, white-point extrapolation) lives in
// package detection.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//
// # Ownership
//
// Every transform returns a freshly allocated buffer and leaves its input
// untouched, so a buffer can be handed to several stages without locking.
// The ImageCache is safe for concurrent use; the buffers it returns are
// shared and must be treated as read-only.
//
// # Error Handling
//
// Stages fail fast with one of the package's error kinds (ErrInvalidInput,
// ErrInsufficientCandidates, ErrDegenerateGeometry, ErrZeroReferenceChannel,
// ErrOutOfBounds) wrapped with context. Use errors.Is to test for a kind and
// Kind to get its name for logs.
package imaging
