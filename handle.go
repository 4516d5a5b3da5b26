package smbcore

import "context"

// Kind tags a Handle as naming a directory or a file.
type Kind int

const (
	KindDirectory Kind = iota
	KindFile
)

func (k Kind) String() string {
	if k == KindFile {
		return "file"
	}
	return "directory"
}

// PermissionMode distinguishes the read-only probe from the read-write probe
// in the Permission Gate (§4.K).
type PermissionMode int

const (
	PermissionRead PermissionMode = iota
	PermissionReadWrite
)

// PermissionState is the result of a permission query or request.
type PermissionState int

const (
	PermissionGranted PermissionState = iota
	PermissionDenied
)

func (s PermissionState) String() string {
	if s == PermissionGranted {
		return "granted"
	}
	return "denied"
}

// Handle is a descriptive reference to a directory or file by path — it
// never owns an open server-side file descriptor, so it may be copied,
// stored, and compared freely, and it outlives deletion of the entry it
// names (subsequent operations then fail NotFound). Handle is the common
// base embedded by DirectoryHandle and FileHandle.
type Handle struct {
	endpoint Endpoint
	path     PathRef
	kind     Kind
	broker   *Broker
}

// Endpoint returns the Endpoint this handle is rooted at.
func (h Handle) Endpoint() Endpoint { return h.endpoint }

// Path returns the handle's share-relative PathRef.
func (h Handle) Path() PathRef { return h.path }

// Kind returns whether this handle names a directory or a file.
func (h Handle) Kind() Kind { return h.kind }

// Name returns the handle's display name: its last path segment, or the
// share name at the root.
func (h Handle) Name() string {
	if h.path.IsRoot() {
		return h.endpoint.Share
	}
	return h.path.Base()
}

// IsSameEntry reports identity equality: same endpoint, same kind, same
// path (§8 invariant: reflexive, and the sole definition of equality — this
// spec fixes the ambiguity the source left between roots that happen to
// share an endpoint and path).
func (h Handle) IsSameEntry(other Handle) bool {
	return h.endpoint == other.endpoint && h.kind == other.kind && h.path.Equal(other.path)
}

// Stat issues an SMB stat for the entry this handle names.
func (h Handle) Stat(ctx context.Context) (StatRecord, error) {
	return h.broker.stat(ctx, h.endpoint, h.path)
}

// QueryPermission reports whether the given access mode is currently
// available on this entry (§4.K). Read is always granted for an existing
// handle (the share is already open); ReadWrite is probed against the
// server's effective ACL without writing to the entry (a directory probe
// creates and then removes a scratch child).
func (h Handle) QueryPermission(ctx context.Context, mode PermissionMode) (PermissionState, error) {
	return queryPermission(ctx, h, mode)
}

// RequestPermission is identical to QueryPermission: there is no
// interactive prompt in this environment (§4.K).
func (h Handle) RequestPermission(ctx context.Context, mode PermissionMode) (PermissionState, error) {
	return queryPermission(ctx, h, mode)
}
