package store

import "errors"

// ErrNotFound marks a single-row lookup that matched nothing.
var ErrNotFound = errors.New("store: not found")

// RemoteError wraps a failure talking to the remote store. Callers decide
// whether to degrade to an empty value or propagate.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string { return "store: " + e.Op + ": " + e.Err.Error() }

func (e *RemoteError) Unwrap() error { return e.Err }

func remoteErr(op string, err error) error {
	return &RemoteError{Op: op, Err: err}
}
