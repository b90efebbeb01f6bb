package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorawan-server/lrwphy/internal/config"
	"github.com/lorawan-server/lrwphy/internal/models"
)

func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	s, err := NewPostgresStore(config.DatabaseConfig{DSN: dsn, MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxLifetime: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	_, err = s.db.ExecContext(ctx, "TRUNCATE decoded_frames")
	require.NoError(t, err)
	return s
}

func TestPostgresStoreDecodedFrames(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()

	fCnt := uint32(70000)
	fPort := uint8(224)
	f := newFrame("01020304", "UnconfirmedDataUp", time.Now().UTC().Truncate(time.Millisecond))
	f.FCnt = &fCnt
	f.FPort = &fPort
	f.FRMPayload = []byte{0xaa}
	f.Report = models.Variables{"mic": "01020304"}
	require.NoError(t, s.SaveDecodedFrame(ctx, f))

	got, err := s.GetDecodedFrame(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "01020304", *got.DevAddr)
	assert.Equal(t, fCnt, *got.FCnt)
	assert.Equal(t, fPort, *got.FPort)
	assert.Equal(t, models.Variables{"mic": "01020304"}, got.Report)
	assert.Nil(t, got.Object)

	require.NoError(t, s.SaveDecodedFrame(ctx, newFrame("", "JoinRequest", time.Now())))

	frames, count, err := s.ListDecodedFrames(ctx, models.DecodedFrameFilter{DevAddr: "01020304"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.Len(t, frames, 1)
	assert.Equal(t, f.ID, frames[0].ID)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveDecodedFrame(ctx, newFrame("", "JoinRequest", time.Now())))
	require.NoError(t, tx.Rollback())

	_, count, err = s.ListDecodedFrames(ctx, models.DecodedFrameFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
