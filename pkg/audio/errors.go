package audio

import (
	"errors"
	"fmt"
)

// Common errors returned by the audio core.
var (
	// ErrDeviceAcquisition is returned when the microphone cannot be
	// acquired (no device, or permission denied). Fatal to session start;
	// the core never retries.
	ErrDeviceAcquisition = errors.New("audio: microphone unavailable")

	// ErrSchedulerClosed is returned when scheduling on a closed scheduler.
	ErrSchedulerClosed = errors.New("audio: scheduler closed")
)

// DecodeError reports a malformed inbound audio chunk. The chunk alone is
// dropped; the pipeline continues with subsequent chunks.
type DecodeError struct {
	Reason string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio: decode: %s", e.Reason)
}

// IsDecodeError reports whether err is a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
