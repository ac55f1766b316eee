// Package errdefs defines the error taxonomy shared by the trainer and the
// predictor. Every typed error matches its sentinel with errors.Is, so callers
// can branch on the category without caring about the concrete type.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	ErrDataNotFound      = errors.New("data not found")
	ErrCorruptImage      = errors.New("corrupt image")
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrArtifactFormat    = errors.New("invalid artifact format")
	ErrImageDecode       = errors.New("image decode failed")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrTrainingFailed    = errors.New("training failed")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// DataNotFoundError reports a missing or unusable dataset directory.
type DataNotFoundError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DataNotFoundError) Error() string {
	msg := fmt.Sprintf("data not found at %q", e.Path)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataNotFoundError) Is(target error) bool { return target == ErrDataNotFound }
func (e *DataNotFoundError) Unwrap() error        { return e.Err }

// CorruptImageError reports a dataset image that could not be decoded.
type CorruptImageError struct {
	Path string
	Err  error
}

func (e *CorruptImageError) Error() string {
	return fmt.Sprintf("corrupt image %q: %v", e.Path, e.Err)
}

func (e *CorruptImageError) Is(target error) bool { return target == ErrCorruptImage }
func (e *CorruptImageError) Unwrap() error        { return e.Err }

type ArtifactNotFoundError struct {
	Path string
	Err  error
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("artifact not found at %q", e.Path)
}

func (e *ArtifactNotFoundError) Is(target error) bool { return target == ErrArtifactNotFound }
func (e *ArtifactNotFoundError) Unwrap() error        { return e.Err }

// ArtifactFormatError reports an artifact file that exists but cannot be
// parsed: bad compression, bad encoding, wrong format tag, unsupported
// version or a weights checksum mismatch.
type ArtifactFormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ArtifactFormatError) Error() string {
	msg := "invalid artifact"
	if e.Path != "" {
		msg += fmt.Sprintf(" %q", e.Path)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ArtifactFormatError) Is(target error) bool { return target == ErrArtifactFormat }
func (e *ArtifactFormatError) Unwrap() error        { return e.Err }

type ImageDecodeError struct {
	Path string
	Err  error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %q: %v", e.Path, e.Err)
}

func (e *ImageDecodeError) Is(target error) bool { return target == ErrImageDecode }
func (e *ImageDecodeError) Unwrap() error        { return e.Err }

// DimensionMismatchError reports a shape that differs from what the model
// expects. What names the offending tensor or layer.
type DimensionMismatchError struct {
	What     string
	Expected []int
	Actual   []int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch for %s: expected %v, got %v", e.What, e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// TrainingFailedError wraps any fatal failure inside the optimization loop.
type TrainingFailedError struct {
	Epoch int
	Batch int
	Err   error
}

func (e *TrainingFailedError) Error() string {
	return fmt.Sprintf("training failed at epoch %d batch %d: %v", e.Epoch, e.Batch, e.Err)
}

func (e *TrainingFailedError) Is(target error) bool { return target == ErrTrainingFailed }
func (e *TrainingFailedError) Unwrap() error        { return e.Err }

// InvalidConfig builds an error for a hyperparameter outside its range.
func InvalidConfig(field string, value any, want string) error {
	return fmt.Errorf("%w: %s=%v, must be %s", ErrInvalidConfig, field, value, want)
}
