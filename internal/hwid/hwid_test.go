package hwid

import (
	"encoding/base64"
	"testing"
)

func TestDeriveIsStableAndWellFormed(t *testing.T) {
	a, err := Derive()
	if err != nil {
		t.Skipf("no usable network interface in this environment: %v", err)
	}
	b, err := Derive()
	if err != nil {
		t.Fatalf("second Derive: %v", err)
	}
	if a != b {
		t.Fatalf("Derive is not stable across calls: %q != %q", a, b)
	}
	raw, err := base64.RawURLEncoding.DecodeString(a)
	if err != nil {
		t.Fatalf("result is not raw base64url: %v", err)
	}
	if len(raw) != 16 {
		t.Fatalf("decoded identity length = %d, want 16", len(raw))
	}
}
