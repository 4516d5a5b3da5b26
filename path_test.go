package smbcore

import "testing"

func TestPathRefJoinAndString(t *testing.T) {
	p, err := NewPathRef("shared", "reports", "annar")
	if err != nil {
		t.Fatalf("NewPathRef: %v", err)
	}
	if got, want := p.String(), "shared/reports/annar"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got, want := p.smbPath(), `shared\reports\annar`; got != want {
		t.Errorf("smbPath() = %q, want %q", got, want)
	}
	if got, want := p.Base(), "annar"; got != want {
		t.Errorf("Base() = %q, want %q", got, want)
	}
}

func TestPathRefJoinRejectsInvalidNames(t *testing.T) {
	for _, name := range []string{"", ".", "..", "a/b", `a\b`, "a\x00b"} {
		if _, err := rootPath.Join(name); err == nil {
			t.Errorf("Join(%q) = nil error, want invalid name error", name)
		} else if !Is(err, KindInvalidName) {
			t.Errorf("Join(%q) kind = %v, want KindInvalidName", name, err)
		}
	}
}

func TestPathRefParentAndRoot(t *testing.T) {
	if !rootPath.IsRoot() {
		t.Error("zero-value PathRef should be root")
	}
	if _, ok := rootPath.Parent(); ok {
		t.Error("Parent() of root should return ok=false")
	}

	p, _ := NewPathRef("a", "b")
	parent, ok := p.Parent()
	if !ok {
		t.Fatal("Parent() of non-root should return ok=true")
	}
	if got, want := parent.String(), "a"; got != want {
		t.Errorf("Parent().String() = %q, want %q", got, want)
	}
}

func TestPathRefEqual(t *testing.T) {
	a, _ := NewPathRef("a", "b")
	b, _ := NewPathRef("a", "b")
	c, _ := NewPathRef("a", "c")
	if !a.Equal(b) {
		t.Error("identical segment lists should compare equal")
	}
	if a.Equal(c) {
		t.Error("differing segment lists should not compare equal")
	}
}

func TestIsDescendant(t *testing.T) {
	anchor, _ := NewPathRef("shared")
	inside, _ := NewPathRef("shared", "reports", "annar")
	outside, _ := NewPathRef("other", "annar")

	rel, ok := isDescendant(anchor, inside)
	if !ok {
		t.Fatal("inside should be a descendant of anchor")
	}
	if len(rel) != 2 || rel[0] != "reports" || rel[1] != "annar" {
		t.Errorf("isDescendant relative segments = %v, want [reports annar]", rel)
	}

	if _, ok := isDescendant(anchor, outside); ok {
		t.Error("outside should not be a descendant of anchor")
	}

	if _, ok := isDescendant(anchor, anchor); !ok {
		t.Error("a path should be its own descendant (empty relative segments)")
	}
}
