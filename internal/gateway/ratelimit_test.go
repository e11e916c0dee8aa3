package gateway

import (
	"fmt"
	"testing"
)

func TestKeyLimiterPerKeyBudget(t *testing.T) {
	kl := NewKeyLimiter(1, 2)

	if !kl.Allow("a") || !kl.Allow("a") {
		t.Fatal("burst capacity not honored")
	}
	if kl.Allow("a") {
		t.Error("third request within burst window allowed")
	}
	// Budgets are per key; a fresh key is unaffected.
	if !kl.Allow("b") {
		t.Error("fresh key rejected")
	}
}

func TestKeyLimiterBoundedTable(t *testing.T) {
	kl := NewKeyLimiter(100, 100)

	for i := 0; i < maxTrackedKeys*2; i++ {
		kl.Allow(fmt.Sprintf("ip-%d", i))
	}

	kl.mu.Lock()
	size := len(kl.entries)
	kl.mu.Unlock()
	if size > maxTrackedKeys {
		t.Errorf("table grew to %d entries, cap is %d", size, maxTrackedKeys)
	}
}
