package smbcore

import (
	"errors"
	"io/fs"
	"testing"
)

func TestOpErrorMessage(t *testing.T) {
	err := notEmptyError("/reports")
	want := `Directory "/reports" is not empty`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestOpErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := ioError("write", "/a/b", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is() failed to find cause in chain")
	}
}

func TestIsClassifiesByKind(t *testing.T) {
	err := notFoundError("stat", "entry", "/a")
	if !Is(err, KindNotFound) {
		t.Error("Is(err, KindNotFound) = false, want true")
	}
	if Is(err, KindNotEmpty) {
		t.Error("Is(err, KindNotEmpty) = true, want false")
	}
}

func TestOpErrorIsMatchesByKindOnly(t *testing.T) {
	err := invalidNameError("getFileHandle", "..")
	target := &OpError{Kind: KindInvalidName}
	if !errors.Is(err, target) {
		t.Error("errors.Is() should match on Kind alone")
	}
}

func TestConvertSmbError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrKind
	}{
		{"not exist", fs.ErrNotExist, KindNotFound},
		{"permission", fs.ErrPermission, KindPermissionDenied},
		{"exist", fs.ErrExist, KindInvalidState},
		{"closed", fs.ErrClosed, KindConnectFailed},
		{"unknown", errors.New("weird failure"), KindIoError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertSmbError("stat", "/a", tt.err)
			if got.Kind != tt.want {
				t.Errorf("convertSmbError(%v).Kind = %v, want %v", tt.err, got.Kind, tt.want)
			}
		})
	}
}

func TestConvertSmbErrorPassesThroughOpError(t *testing.T) {
	original := notFoundError("stat", "entry", "/a")
	got := convertSmbError("stat", "/a", original)
	if got != original {
		t.Error("convertSmbError should pass an already-classified *OpError through unchanged")
	}
}

func TestConvertSmbErrorNil(t *testing.T) {
	if got := convertSmbError("stat", "/a", nil); got != nil {
		t.Errorf("convertSmbError(nil) = %v, want nil", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"io error", ioError("read", "/a", errors.New("x")), true},
		{"connect failed", connectFailedError("ep", errors.New("x")), true},
		{"not found is permanent", notFoundError("stat", "entry", "/a"), false},
		{"invalid name is permanent", invalidNameError("getFileHandle", ".."), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
