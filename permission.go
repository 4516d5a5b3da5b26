package smbcore

import (
	"context"
	"os"
)

// queryPermission implements the Permission Gate (§4.K). read is always
// granted for a handle that already exists (the share is open and the
// handle's Stat already proved reachability). readwrite probes the entry's
// effective ACL: for a file, an open-for-write that is immediately closed
// without any write call; for a directory, a mkdir of a scratch child whose
// name cannot collide with a real child, removed again right away. A
// permission denial surfaces as PermissionDenied with a nil error; any other
// probe failure is returned as an error alongside PermissionDenied.
func queryPermission(ctx context.Context, h Handle, mode PermissionMode) (PermissionState, error) {
	if mode == PermissionRead {
		return PermissionGranted, nil
	}

	probePath := h.path
	if h.kind == KindDirectory {
		var err error
		probePath, err = h.path.Join(".smbcore-permission-probe")
		if err != nil {
			return PermissionDenied, err
		}
		return probeDirectoryWrite(ctx, h, probePath)
	}
	return probeFileWrite(ctx, h)
}

func probeFileWrite(ctx context.Context, h Handle) (PermissionState, error) {
	sh, release, err := h.broker.openFile(ctx, h.endpoint, h.path, os.O_WRONLY, 0)
	if err != nil {
		if Is(err, KindPermissionDenied) {
			return PermissionDenied, nil
		}
		return PermissionDenied, err
	}
	defer release()
	_ = sh.Close(ctx)
	return PermissionGranted, nil
}

// probeDirectoryWrite attempts to create, then immediately remove, a
// scratch entry that cannot collide with user data — the create is the
// probe; the removal keeps the probe side-effect-free on success.
func probeDirectoryWrite(ctx context.Context, h Handle, probePath PathRef) (PermissionState, error) {
	err := h.broker.mkdir(ctx, h.endpoint, probePath)
	if err != nil {
		if Is(err, KindPermissionDenied) {
			return PermissionDenied, nil
		}
		if Is(err, KindInvalidState) {
			// The probe name already exists from a prior crashed probe;
			// treat reachability of mkdir's rejection path as granted.
			return PermissionGranted, nil
		}
		return PermissionDenied, err
	}
	_ = h.broker.remove(ctx, h.endpoint, probePath, false)
	return PermissionGranted, nil
}
