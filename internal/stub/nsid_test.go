package stub

import "testing"

func TestDeriveNSIDStableWithinProcess(t *testing.T) {
	a := deriveNSID()
	b := deriveNSID()
	if len(a) != 16 {
		t.Fatalf("NSID length = %d, want 16", len(a))
	}
	if string(a) != string(b) {
		t.Error("deriveNSID must return the same value on every call within one process")
	}
}
