package smbcore

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrKind is the error taxonomy from the external interface contract: stable
// across backends, meant for callers to branch on failure mode rather than
// on message text.
type ErrKind int

const (
	KindUnknown ErrKind = iota
	KindNotFound
	KindTypeMismatch
	KindNotEmpty
	KindInvalidName
	KindInvalidURL
	KindInvalidAuth
	KindInvalidState
	KindUnsupportedType
	KindPermissionDenied
	KindConnectFailed
	KindIoError
	KindCancelled
)

func (k ErrKind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindTypeMismatch:
		return "TypeMismatch"
	case KindNotEmpty:
		return "NotEmpty"
	case KindInvalidName:
		return "InvalidName"
	case KindInvalidURL:
		return "InvalidUrl"
	case KindInvalidAuth:
		return "InvalidAuth"
	case KindInvalidState:
		return "InvalidState"
	case KindUnsupportedType:
		return "UnsupportedType"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindConnectFailed:
		return "ConnectFailed"
	case KindIoError:
		return "IoError"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// OpError records the operation, the offending path (where applicable), the
// taxonomy kind, and the underlying cause. Error() renders the stable,
// externally visible message contract; for the handful of operations with a
// fixed literal message (§6) that literal IS the message, verbatim.
type OpError struct {
	Op   string
	Path string
	Kind ErrKind
	Err  error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
}

func (e *OpError) Unwrap() error { return e.Err }

// Is reports whether target is an *OpError of the same Kind, so callers can
// write errors.Is(err, &OpError{Kind: KindNotFound}) without constructing a
// full error value.
func (e *OpError) Is(target error) bool {
	var other *OpError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func newOpError(op, path string, kind ErrKind, format string, args ...any) *OpError {
	return &OpError{Op: op, Path: path, Kind: kind, Err: fmt.Errorf(format, args...)}
}

func notFoundError(op, entryKind, name string) *OpError {
	return newOpError(op, name, KindNotFound, "%s %q not found", entryKind, name)
}

func entryNotFoundError(name string) *OpError {
	return newOpError("removeEntry", name, KindNotFound, "Entry %q not found", name)
}

func notEmptyError(name string) *OpError {
	return newOpError("removeEntry", name, KindNotEmpty, "Directory %q is not empty", name)
}

func typeMismatchError(op, name string) *OpError {
	return newOpError(op, name, KindTypeMismatch, "The path supplied exists, but was not an entry of requested type.")
}

func unsupportedTypeError(op string) *OpError {
	return newOpError(op, "", KindUnsupportedType, "Writing unsupported type")
}

func unsupportedDataError(op string) *OpError {
	return newOpError(op, "", KindUnsupportedType, "Writing unsupported data type")
}

func invalidStateLocked(op string) *OpError {
	return newOpError(op, "", KindInvalidState, "Invalid state: WritableStream is locked")
}

func invalidStateClosed(op string) *OpError {
	return newOpError(op, "", KindInvalidState, "Invalid state: WritableStream is closed")
}

func invalidNameError(op, name string) *OpError {
	return newOpError(op, name, KindInvalidName, "invalid name %q", name)
}

func invalidURLError(raw string, cause error) *OpError {
	return &OpError{Op: "parseURL", Path: raw, Kind: KindInvalidURL, Err: fmt.Errorf("invalid smb url %q: %w", raw, cause)}
}

func invalidAuthError(reason string) *OpError {
	return newOpError("auth", "", KindInvalidAuth, "%s", reason)
}

func connectFailedError(endpoint string, cause error) *OpError {
	return &OpError{Op: "connect", Path: endpoint, Kind: KindConnectFailed, Err: fmt.Errorf("connect %s: %w", endpoint, cause)}
}

func ioError(op, path string, cause error) *OpError {
	return &OpError{Op: op, Path: path, Kind: KindIoError, Err: cause}
}

func cancelledError(op string) *OpError {
	return newOpError(op, "", KindCancelled, "operation cancelled")
}

// Is classifies err against the taxonomy, unwrapping as needed. Exported so
// callers outside the package can branch on failure kind without importing
// the unexported constructors above.
func Is(err error, kind ErrKind) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind == kind
	}
	return false
}

// convertSmbError classifies a raw error surfaced by go-smb2 (which reports
// failures as plain *fs.PathError / os.* sentinels rather than this
// package's taxonomy) into an *OpError, mirroring the teacher's convertError
// switch over the standard fs sentinel errors.
func convertSmbError(op, path string, err error) *OpError {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return oe
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return notFoundError(op, "entry", path)
	case errors.Is(err, fs.ErrPermission):
		return &OpError{Op: op, Path: path, Kind: KindPermissionDenied, Err: err}
	case errors.Is(err, fs.ErrExist):
		return &OpError{Op: op, Path: path, Kind: KindInvalidState, Err: err}
	case errors.Is(err, fs.ErrClosed):
		return &OpError{Op: op, Path: path, Kind: KindConnectFailed, Err: err}
	default:
		return ioError(op, path, err)
	}
}

// isRetryable reports whether err indicates a transient failure a caller
// might reasonably retry (a transport hiccup or failed connect), as opposed
// to a permanent rejection (bad name, missing entry, permission denial).
// The core itself never retries mid-flight; this only classifies errors for
// the Request Broker's own connect/resubmit backoff.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var oe *OpError
	if errors.As(err, &oe) {
		switch oe.Kind {
		case KindIoError, KindConnectFailed:
			return true
		default:
			return false
		}
	}
	var netErr interface {
		Timeout() bool
		Temporary() bool
	}
	if errors.As(err, &netErr) {
		return netErr.Timeout() || netErr.Temporary()
	}
	return false
}
