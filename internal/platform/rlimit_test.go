package platform

import "testing"

func TestRaiseNoFileLimitDoesNotLowerIt(t *testing.T) {
	got, err := RaiseNoFileLimit(1)
	if err != nil {
		t.Fatalf("RaiseNoFileLimit: %v", err)
	}
	if got < 1 {
		t.Fatalf("got %d, want at least 1", got)
	}
}
