// Package densevdb moves dense 3D simulation fields (density, velocity,
// temperature) in and out of sparse voxel grids stored in a single
// compressed container file.
//
// A Writer turns flat host arrays into grids, collects file metadata and
// commits everything to disk in one step. A Reader loads a container and
// copies grids back into caller-owned buffers. The host never sees the
// sparse representation: grids are opaque handles with a name, a value
// kind and a classification label.
//
// Every failure is reported as an error wrapping one of the sentinels
// below, and CodeOf reduces any error to the small closed Code taxonomy
// that the flat C-compatible surface in package capi returns.
package densevdb

import (
	"errors"
	"fmt"
)

// Sentinel errors for programmatic handling. Callers can use errors.Is to
// distinguish caller mistakes (ErrInvalidArgument, ErrNameCollision) from
// lifecycle misuse (ErrCommitted, ErrNotOpen, ErrClosed) and from file or
// engine faults (ErrEngine, ErrCorruptHeader, ErrCorruptRecord).
var (
	ErrNotFound        = errors.New("not found")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrNameCollision   = errors.New("grid name already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrEngine          = errors.New("engine failure")
	ErrCommitted       = errors.New("writer already committed")
	ErrNotOpen         = errors.New("reader not open")
	ErrAlreadyOpen     = errors.New("reader already open")
	ErrClosed          = errors.New("session is closed")
	ErrCorruptHeader   = errors.New("corrupt header")
	ErrCorruptRecord   = errors.New("corrupt record")
	ErrDecompress      = errors.New("decompression failed")
	ErrChecksum        = errors.New("payload checksum mismatch")

	// ErrResolution is an ErrInvalidArgument: the buffer does not match the
	// grid's resolution.
	ErrResolution = fmt.Errorf("%w: resolution mismatch", ErrInvalidArgument)
)

// Code is the boundary-safe outcome of an operation.
type Code int32

const (
	CodeOK Code = iota
	CodeEngineFailure
	CodeNotFound
	CodeTypeMismatch
	CodeNameCollision
	CodeInvalidArgument
	CodeInvalidState
)

var codeNames = [...]string{
	CodeOK:              "ok",
	CodeEngineFailure:   "engine failure",
	CodeNotFound:        "not found",
	CodeTypeMismatch:    "type mismatch",
	CodeNameCollision:   "name collision",
	CodeInvalidArgument: "invalid argument",
	CodeInvalidState:    "invalid state",
}

func (c Code) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", int32(c))
}

// CodeOf maps an error onto the Code taxonomy. nil is CodeOK and anything
// not recognised is an engine failure.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrTypeMismatch):
		return CodeTypeMismatch
	case errors.Is(err, ErrNameCollision):
		return CodeNameCollision
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrCommitted), errors.Is(err, ErrNotOpen),
		errors.Is(err, ErrAlreadyOpen), errors.Is(err, ErrClosed):
		return CodeInvalidState
	default:
		return CodeEngineFailure
	}
}

// guard runs fn and converts a panic raised inside it into an ErrEngine
// error so that no fault escapes an exported operation.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %w: %v", op, ErrEngine, r)
		}
	}()
	return fn()
}
