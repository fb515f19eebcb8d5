package memory

import (
	"context"
	"fmt"
	"sync"

	ports "estoque/internal/sheets"
)

// Store is an in-process mirror, used when no spreadsheet is configured
// and in tests.
type Store struct {
	mu     sync.Mutex
	sheets map[string][][]string
	writes int
}

var (
	_ ports.MirrorWriter = (*Store)(nil)
	_ ports.MirrorReader = (*Store)(nil)
)

func New() *Store {
	return &Store{sheets: make(map[string][][]string)}
}

// WriteOwnerSheet replaces the owner's rows and returns a synthetic reference.
func (s *Store) WriteOwnerSheet(_ context.Context, sheet ports.OwnerSheet) (string, error) {
	if sheet.OwnerID == "" {
		return "", fmt.Errorf("owner id is required")
	}
	rows := make([][]string, len(sheet.Rows))
	for i, r := range sheet.Rows {
		rows[i] = append([]string(nil), r...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[sheet.OwnerID] = rows
	s.writes++
	return fmt.Sprintf("mem:%s:%d", sheet.OwnerID, len(rows)), nil
}

func (s *Store) ReadOwnerSheet(_ context.Context, ownerID string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.sheets[ownerID]
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

// Writes returns how many sheets have been written.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
