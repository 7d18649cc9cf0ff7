package fetch

import "fmt"

// TransientError marks a failure worth retrying: timeouts, connection
// resets, 5xx-class API responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// PermanentError marks a failure retrying cannot fix: authentication
// rejections, missing resources, malformed requests.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// FetchError is the terminal failure of one fetch operation. Nothing
// escapes the fetcher except this type (or a context error).
type FetchError struct {
	Server    string
	Operation string
	Attempts  int
	Cause     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s failed after %d attempt(s): %v", e.Server, e.Operation, e.Attempts, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }
