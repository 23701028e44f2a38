package fetch

import (
	"errors"
	"fmt"
	"time"
)

// ErrIncompleteTransfer marks a body that ended early or failed
// verification. Nothing is left at the destination key.
var ErrIncompleteTransfer = errors.New("incomplete transfer")

// Kind is the terminal state of one fetch.
type Kind string

const (
	SkippedNoParentDir Kind = "skipped-no-parent-dir"
	AlreadyPresent     Kind = "already-present"
	Downloaded         Kind = "downloaded"
	HTTPError          Kind = "http-error"
	NetworkError       Kind = "network-error"
	LocalIOError       Kind = "local-io-error"
)

// Kinds lists every outcome kind in a stable order.
var Kinds = []Kind{Downloaded, AlreadyPresent, SkippedNoParentDir, HTTPError, NetworkError, LocalIOError}

// Outcome reports what happened to one task. Failures are values, not
// errors: Err carries the cause for logging.
type Outcome struct {
	Task       Task
	Kind       Kind
	StatusCode int
	Bytes      int64
	Checksum   string
	Duration   time.Duration
	Err        error
}

// Present reports whether the destination key holds a file afterwards.
func (o Outcome) Present() bool {
	return o.Kind == Downloaded || o.Kind == AlreadyPresent
}

// Failed reports whether the outcome should count as a failure.
func (o Outcome) Failed() bool {
	switch o.Kind {
	case HTTPError, NetworkError, LocalIOError:
		return true
	}
	return false
}

func (o Outcome) String() string {
	switch o.Kind {
	case HTTPError:
		return fmt.Sprintf("%s(%d)", o.Kind, o.StatusCode)
	case NetworkError, LocalIOError:
		if o.Err != nil {
			return fmt.Sprintf("%s: %v", o.Kind, o.Err)
		}
	}
	return string(o.Kind)
}
