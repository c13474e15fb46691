package sandbox

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfUnwrapsChain(t *testing.T) {
	err := fmt.Errorf("attempt 2: %w", NewExecError(KindTimeout, "exceeded %s", "60s"))
	kind, ok := KindOf(err)
	if !ok || kind != KindTimeout {
		t.Fatalf("KindOf() = %q, %v", kind, ok)
	}
	if err.Error() != "attempt 2: exceeded 60s" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatal("KindOf(plain) = true")
	}
}
