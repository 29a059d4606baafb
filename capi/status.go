package capi

import (
	"fmt"
	"sync"

	"github.com/jpl-au/densevdb"
)

// The last-error slot is process-wide, not per goroutine or per thread.
// Every call clears it on entry and sets it on failure, so it describes the
// most recent call made by anyone. Hosts that call from several threads
// must rely on the returned Code and treat the message as advisory.
var last struct {
	mu  sync.Mutex
	err error
}

func setLast(err error) {
	last.mu.Lock()
	last.err = err
	last.mu.Unlock()
}

// LastError returns the message of the most recent failed call, or "" if
// the most recent call succeeded.
func LastError() string {
	last.mu.Lock()
	defer last.mu.Unlock()
	if last.err == nil {
		return ""
	}
	return last.err.Error()
}

// LastCode returns the Code of the most recent call.
func LastCode() densevdb.Code {
	last.mu.Lock()
	defer last.mu.Unlock()
	return densevdb.CodeOf(last.err)
}

// call runs fn as one boundary call: it clears the slot, converts a panic
// into an engine failure and records any error.
func call(op string, fn func() error) densevdb.Code {
	setLast(nil)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", densevdb.ErrEngine, r)
			}
		}()
		return fn()
	}()
	if err != nil {
		setLast(fmt.Errorf("%s: %w", op, err))
	}
	return densevdb.CodeOf(err)
}

// Reject records a nil pointer passed across the C boundary for op and
// returns CodeInvalidArgument.
func Reject(op, what string) densevdb.Code {
	return call(op, func() error {
		return fmt.Errorf("%w: nil %s", densevdb.ErrInvalidArgument, what)
	})
}
