// Package ledger provides clients for the durable hype balance service.
//
// The hub itself never persists balances. Deployments configure the HTTP client
// against the ledger service; without one, the in-memory fallback keeps running
// totals for the lifetime of the process.
package ledger

import (
	"context"
	"sync"
)

// Memory is the in-process fallback ledger. Totals start at zero and
// survive only as long as the process does.
type Memory struct {
	mu     sync.Mutex
	totals map[string]int
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{totals: make(map[string]int)}
}

// Award adds amount to the target user's total and returns the new total.
func (m *Memory) Award(_ context.Context, _, targetUserID string, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[targetUserID] += amount
	return m.totals[targetUserID], nil
}

// Total returns the current total for a user.
func (m *Memory) Total(targetUserID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[targetUserID]
}
