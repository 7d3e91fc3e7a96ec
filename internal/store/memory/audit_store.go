package memory

import (
	"context"
	"time"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// AuditStore implements domain.AuditStore on a DB.
type AuditStore struct {
	db  *DB
	now func() time.Time
}

func NewAuditStore(db *DB) *AuditStore {
	return &AuditStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.audit = append(s.db.audit, domain.AuditEntry{
		ID:        int64(len(s.db.audit) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: s.now(),
	})
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make([]domain.AuditEntry, 0, len(s.db.audit))
	for i := len(s.db.audit) - 1; i >= 0; i-- {
		e := s.db.audit[i]
		if !inWindow(e.CreatedAt, opts) {
			continue
		}
		out = append(out, e)
	}
	return paginate(out, opts), nil
}
