package smbcore

import "testing"

func TestIsSameEntryReflexive(t *testing.T) {
	ep := Endpoint{Server: "fileserver", Port: 445, Share: "testshare"}
	p, _ := NewPathRef("reports", "annar")
	h := Handle{endpoint: ep, path: p, kind: KindFile}

	if !h.IsSameEntry(h) {
		t.Error("a handle must be the same entry as itself")
	}
}

func TestIsSameEntryRequiresEndpointKindAndPathEquality(t *testing.T) {
	epA := Endpoint{Server: "fileserver", Port: 445, Share: "testshare"}
	epB := Endpoint{Server: "fileserver", Port: 445, Share: "othershare"}
	pathA, _ := NewPathRef("reports", "annar")
	pathB, _ := NewPathRef("reports", "other")

	base := Handle{endpoint: epA, path: pathA, kind: KindFile}

	tests := []struct {
		name string
		h    Handle
		want bool
	}{
		{"identical fields", Handle{endpoint: epA, path: pathA, kind: KindFile}, true},
		{"different path", Handle{endpoint: epA, path: pathB, kind: KindFile}, false},
		{"different kind", Handle{endpoint: epA, path: pathA, kind: KindDirectory}, false},
		{"different endpoint (different share)", Handle{endpoint: epB, path: pathA, kind: KindFile}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.IsSameEntry(tt.h); got != tt.want {
				t.Errorf("IsSameEntry() = %v, want %v", got, tt.want)
			}
			// IsSameEntry must be symmetric.
			if got := tt.h.IsSameEntry(base); got != tt.want {
				t.Errorf("IsSameEntry() (reversed) = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestIsSameEntryDistinctRootsSamePath exercises the Open Question this
// invariant resolves: two directory roots that happen to share the same
// (zero-value) path but belong to distinct endpoints are NOT the same
// entry — endpoint identity, not path alone, disambiguates roots.
func TestIsSameEntryDistinctRootsSamePath(t *testing.T) {
	epA := Endpoint{Server: "fileserver", Port: 445, Share: "testshare"}
	epB := Endpoint{Server: "fileserver", Port: 445, Share: "othershare"}

	rootA := RootHandle(epA, nil)
	rootB := RootHandle(epB, nil)

	if rootA.Handle.IsSameEntry(rootA.Handle) != true {
		t.Error("a root handle must be the same entry as itself")
	}
	if rootA.Handle.IsSameEntry(rootB.Handle) {
		t.Error("distinct directory roots with the same path must not compare equal merely because the path matches")
	}
}
