package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lorawan-server/lrwphy/internal/models"
)

// MemoryStore keeps the decode log in process memory, bounded to limit entries
type MemoryStore struct {
	mu     sync.RWMutex
	frames []*models.DecodedFrame
	limit  int
}

// NewMemoryStore creates a memory store; limit <= 0 means unbounded
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{limit: limit}
}

// BeginTx returns the store itself; writes are applied immediately
func (s *MemoryStore) BeginTx(ctx context.Context) (Store, error) { return s, nil }

// Commit is a no-op
func (s *MemoryStore) Commit() error { return nil }

// Rollback is a no-op
func (s *MemoryStore) Rollback() error { return nil }

// Migrate is a no-op
func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// SaveDecodedFrame stores a copy of frame
func (s *MemoryStore) SaveDecodedFrame(ctx context.Context, frame *models.DecodedFrame) error {
	if frame.ID == uuid.Nil {
		frame.ID = uuid.New()
	}
	if frame.ReceivedAt.IsZero() {
		frame.ReceivedAt = time.Now()
	}
	if len(frame.PHYPayload) == 0 || frame.MType == "" {
		return fmt.Errorf("%w: phy payload and message type are required", ErrInvalidData)
	}

	cp := *frame
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, &cp)
	if s.limit > 0 && len(s.frames) > s.limit {
		s.frames = s.frames[len(s.frames)-s.limit:]
	}
	return nil
}

// GetDecodedFrame returns one stored entry
func (s *MemoryStore) GetDecodedFrame(ctx context.Context, id uuid.UUID) (*models.DecodedFrame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.frames {
		if f.ID == id {
			cp := *f
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListDecodedFrames lists stored entries, newest first
func (s *MemoryStore) ListDecodedFrames(ctx context.Context, filter models.DecodedFrameFilter, limit, offset int) ([]*models.DecodedFrame, int64, error) {
	s.mu.RLock()
	var matched []*models.DecodedFrame
	for _, f := range s.frames {
		if filter.DevAddr != "" && (f.DevAddr == nil || !strings.EqualFold(*f.DevAddr, filter.DevAddr)) {
			continue
		}
		if filter.MType != "" && f.MType != filter.MType {
			continue
		}
		cp := *f
		matched = append(matched, &cp)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ReceivedAt.After(matched[j].ReceivedAt)
	})

	count := int64(len(matched))
	if offset >= len(matched) {
		return nil, count, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, count, nil
}
