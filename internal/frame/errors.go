package frame

import "github.com/cockroachdb/errors"

var (
	// ErrUnsupportedExtent is returned by a SwapchainManager when the surface will not accept the
	// requested size. The synchronizer treats it as transient and waits for a usable size.
	ErrUnsupportedExtent = errors.New("unsupported swapchain extent")

	// ErrDeviceFailure marks every error that ends the present loop: a lost device, a failed
	// fence wait, or an unexpected acquire, submit or present result.
	ErrDeviceFailure = errors.New("device failure")
)

func deviceFailure(err error, format string, args ...interface{}) error {
	return errors.Wrapf(errors.Mark(err, ErrDeviceFailure), format, args...)
}

// IsDeviceFailure reports whether err ended the present loop.
func IsDeviceFailure(err error) bool {
	return errors.Is(err, ErrDeviceFailure)
}
