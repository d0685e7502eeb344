package custody

import (
	"fmt"
	"sync"
)

// Memory is an in-process custody registry used by tests and local runs.
type Memory struct {
	mu     sync.Mutex
	owners map[Ref]string

	// TransferErr, when set, makes every Transfer fail with that error.
	TransferErr error
}

func NewMemory() *Memory {
	return &Memory{
		owners: make(map[Ref]string),
	}
}

func (m *Memory) Mint(ref Ref, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.owners[ref] = owner
}

func (m *Memory) OwnerOf(ref Ref) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, ok := m.owners[ref]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAsset, ref)
	}

	return owner, nil
}

func (m *Memory) Transfer(ref Ref, from string, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.TransferErr != nil {
		return m.TransferErr
	}

	owner, ok := m.owners[ref]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, ref)
	}

	if owner != from {
		return fmt.Errorf("%w: %s does not hold %s", ErrTransferUnapproved, from, ref)
	}

	m.owners[ref] = to

	return nil
}
