package imaging

import "errors"

// Error kinds reported by the pipeline stages. Stages wrap these with
// context using fmt.Errorf("%w: ..."); test for them with errors.Is.
var (
	// ErrInvalidInput reports a malformed or empty buffer or invalid parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientCandidates reports that voting produced fewer than two
	// distinct candidate points to cluster.
	ErrInsufficientCandidates = errors.New("insufficient circle candidates")

	// ErrDegenerateGeometry reports two circles with coincident centres.
	ErrDegenerateGeometry = errors.New("degenerate circle geometry")

	// ErrZeroReferenceChannel reports a zero channel at the white point.
	ErrZeroReferenceChannel = errors.New("zero reference channel")

	// ErrOutOfBounds reports a coordinate outside the image.
	ErrOutOfBounds = errors.New("coordinate out of bounds")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidInput, "InvalidInput"},
	{ErrInsufficientCandidates, "InsufficientCandidates"},
	{ErrDegenerateGeometry, "DegenerateGeometry"},
	{ErrZeroReferenceChannel, "ZeroReferenceChannel"},
	{ErrOutOfBounds, "OutOfBounds"},
}

// Kind returns the name of the error kind wrapped by err, or "Internal" for
// errors that are not one of the pipeline kinds. A nil error has kind "".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
