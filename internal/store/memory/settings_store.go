package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// SettingsStore implements domain.SettingsStore on a DB.
type SettingsStore struct {
	db *DB
}

func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) EnsureDefaults(_ context.Context, def domain.Settings) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.setting == nil {
		cp := def
		s.db.setting = &cp
	}
	return nil
}

func (s *SettingsStore) Get(_ context.Context) (domain.Settings, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if s.db.setting == nil {
		return domain.Settings{}, fmt.Errorf("memory: settings: %w", domain.ErrNotFound)
	}
	return *s.db.setting, nil
}

func (s *SettingsStore) SetPaused(_ context.Context, paused bool) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.setting == nil {
		return fmt.Errorf("memory: settings: %w", domain.ErrNotFound)
	}
	s.db.setting.Paused = paused
	return nil
}

func (s *SettingsStore) SetBiddingDuration(_ context.Context, d time.Duration) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.setting == nil {
		return fmt.Errorf("memory: settings: %w", domain.ErrNotFound)
	}
	s.db.setting.BiddingDuration = d
	return nil
}

func (s *SettingsStore) GetMedium(_ context.Context, addr common.Address) (domain.Medium, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	m, ok := s.db.media[addr]
	if !ok {
		return domain.Medium{}, fmt.Errorf("memory: medium %s: %w", addr.Hex(), domain.ErrNotFound)
	}
	return m, nil
}

func (s *SettingsStore) UpsertMedium(_ context.Context, m domain.Medium) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.media[m.Address] = m
	return nil
}

func (s *SettingsStore) ListMedia(_ context.Context) ([]domain.Medium, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := make([]domain.Medium, 0, len(s.db.media))
	for _, m := range s.db.media {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Cmp(out[j].Address) < 0 })
	return out, nil
}
