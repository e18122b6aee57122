// Package fault defines the error taxonomy shared by all inspection
// subsystems. Every fault is attributed to a named source subsystem.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a fault.
type Kind string

const (
	// KindHealthCheck blocks a job from starting; it is not fatal.
	KindHealthCheck Kind = "health_check_failed"
	// KindCameraTimeout is a bounded capture wait that expired.
	KindCameraTimeout Kind = "camera_timeout"
	// KindMotionFault is a failed or timed-out axis move on either axis.
	KindMotionFault Kind = "motion_fault"
	// KindInference is a model or runtime failure during detection.
	KindInference Kind = "inference_error"
	// KindStorage is a persistence failure; it always escalates the job.
	KindStorage Kind = "storage_error"
	// KindModelLoad is missing or malformed model metadata at load time.
	KindModelLoad Kind = "model_load_error"
)

// Fault is an error attributed to a subsystem.
type Fault struct {
	Kind   Kind
	Source string // subsystem name, e.g. "turntable", "camera.front"
	Err    error
}

// New creates a fault with a formatted message.
func New(kind Kind, source, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Source: source, Err: fmt.Errorf(format, args...)}
}

// Wrap attributes an existing error to a subsystem.
func Wrap(kind Kind, source string, err error) *Fault {
	if err == nil {
		return nil
	}
	return &Fault{Kind: kind, Source: source, Err: err}
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.Source, f.Kind, f.Err)
}

// Unwrap returns the underlying error.
func (f *Fault) Unwrap() error {
	return f.Err
}

// KindOf returns the fault kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// Is reports whether err is a fault of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
