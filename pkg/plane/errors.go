package plane

import "errors"

// Shared error kinds. Packages in this module wrap these sentinels with
// fmt.Errorf("...: %w", ...) so callers can classify failures with errors.Is.
var (
	// ErrInvalidParameter reports a bad caller-supplied parameter such as a
	// non-positive tile size, downsample factor or level count. Parameter
	// errors are raised before any output byte is written.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUnsupportedShape reports a plane that is not 2-D, or channels of a
	// stack that disagree in shape or element type.
	ErrUnsupportedShape = errors.New("unsupported shape")
)
