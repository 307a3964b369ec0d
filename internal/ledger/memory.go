package ledger

import (
	"context"
	"fmt"
	"sync"

	"bioanchor/pkg/platform/sentinel"
)

// Memory is an in-process ledger fake. It preserves the append-only contract
// (commits are never retracted; a re-commit under the same key supersedes the
// readable value, mirroring how verifiers always consult the latest anchor)
// and lets tests inject commit failures to exercise retry and timeout paths
// without a live chain.
type Memory struct {
	mu        sync.RWMutex
	values    map[string][]byte
	seq       int
	commitErr error
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// FailCommits makes every subsequent Commit return err until Restore is
// called. Lookup is unaffected.
func (m *Memory) FailCommits(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitErr = err
}

// Restore clears an injected commit failure.
func (m *Memory) Restore() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitErr = nil
}

func (m *Memory) Commit(ctx context.Context, key string, value []byte) (TxRef, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("commit %s: %w", key, sentinel.ErrTimeout)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return "", fmt.Errorf("commit %s: %w", key, m.commitErr)
	}
	m.seq++
	m.values[key] = append([]byte(nil), value...)
	return TxRef(fmt.Sprintf("memtx-%06d", m.seq)), nil
}

func (m *Memory) Lookup(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return nil, fmt.Errorf("lookup %s: %w", key, sentinel.ErrNotFound)
	}
	return append([]byte(nil), value...), nil
}
