package object

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStructure marks malformed object bytes: wrong schema, bad
	// name ordering, invalid mode bits.
	ErrInvalidStructure = errors.New("invalid object structure")

	// ErrObjectNotFound is returned when neither the loose store nor any pack
	// holds the requested object.
	ErrObjectNotFound = errors.New("object not found")

	// ErrChecksumMismatch is matched by *ChecksumMismatchError.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrPackCorrupt is matched by *PackCorruptError.
	ErrPackCorrupt = errors.New("corrupted pack")

	// ErrCorruptContent is matched by *CorruptContentError.
	ErrCorruptContent = errors.New("corrupted object content")
)

// StructuralError reports an object whose bytes do not decode or violate a
// type invariant.
type StructuralError struct {
	Name ObjectName
	Err  error
}

func (e *StructuralError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Name.Checksum == "" {
		return fmt.Sprintf("%s %s: %v", ErrInvalidStructure, e.Name.Type, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", ErrInvalidStructure, e.Name, e.Err)
}

func (e *StructuralError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StructuralError) Is(target error) bool {
	return target == ErrInvalidStructure
}

// ChecksumMismatchError reports an object whose recomputed checksum differs
// from the checksum it is stored under.
type ChecksumMismatchError struct {
	Name   ObjectName
	Actual Hash
	Path   string
}

func (e *ChecksumMismatchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("corrupted object %s; actual checksum: %s", e.Name, e.Actual)
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	return msg
}

func (e *ChecksumMismatchError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// CorruptContentError reports an object whose stored content no longer
// decodes, such as an archived payload that fails to decompress. Its
// checksum cannot be recomputed.
type CorruptContentError struct {
	Name ObjectName
	Path string
	Err  error
}

func (e *CorruptContentError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("corrupted object %s: %v", e.Name, e.Err)
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	return msg
}

func (e *CorruptContentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *CorruptContentError) Is(target error) bool {
	return target == ErrCorruptContent
}

// Pack corruption reasons.
const (
	PackReasonContentChecksum = "content checksum"
	PackReasonOffsetRange     = "offset out of range"
	PackReasonIndex           = "invalid index"
	PackReasonEntry           = "invalid entry"
)

// PackCorruptError identifies a pack whose data file or index is unsound.
type PackCorruptError struct {
	Pack   Hash
	Reason string
	Path   string
	Detail string
}

func (e *PackCorruptError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s '%s': %s", ErrPackCorrupt, e.Pack, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	return msg
}

func (e *PackCorruptError) Is(target error) bool {
	return target == ErrPackCorrupt
}

func structuralf(t ObjectType, format string, args ...any) error {
	return &StructuralError{Name: ObjectName{Type: t}, Err: fmt.Errorf(format, args...)}
}
