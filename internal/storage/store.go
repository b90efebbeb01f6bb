package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/lorawan-server/lrwphy/internal/models"
)

// Common errors
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidData = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// Schema
	Migrate(ctx context.Context) error

	// Decode log methods
	SaveDecodedFrame(ctx context.Context, frame *models.DecodedFrame) error
	GetDecodedFrame(ctx context.Context, id uuid.UUID) (*models.DecodedFrame, error)
	ListDecodedFrames(ctx context.Context, filter models.DecodedFrameFilter, limit, offset int) ([]*models.DecodedFrame, int64, error)

	Close() error
}
