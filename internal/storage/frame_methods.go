package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lorawan-server/lrwphy/internal/models"
)

const decodedFrameColumns = `id, source, gateway_id, phy_payload, m_type, direction,
               dev_addr, f_cnt, f_port, frm_payload, decrypted, object, report,
               error_kind, error, received_at`

// SaveDecodedFrame stores a decode log entry
func (s *PostgresStore) SaveDecodedFrame(ctx context.Context, frame *models.DecodedFrame) error {
	if frame.ID == uuid.Nil {
		frame.ID = uuid.New()
	}

	if frame.ReceivedAt.IsZero() {
		frame.ReceivedAt = time.Now()
	}

	if len(frame.PHYPayload) == 0 || frame.MType == "" {
		return fmt.Errorf("%w: phy payload and message type are required", ErrInvalidData)
	}

	query := `
        INSERT INTO decoded_frames (
            ` + decodedFrameColumns + `
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := s.getDB().ExecContext(ctx, query,
		frame.ID, frame.Source, frame.GatewayID, frame.PHYPayload, frame.MType,
		frame.Direction, frame.DevAddr, frame.FCnt, frame.FPort, frame.FRMPayload,
		frame.Decrypted, frame.Object, frame.Report, frame.ErrorKind, frame.Error,
		frame.ReceivedAt,
	)

	return err
}

// GetDecodedFrame returns one decode log entry
func (s *PostgresStore) GetDecodedFrame(ctx context.Context, id uuid.UUID) (*models.DecodedFrame, error) {
	row := s.getDB().QueryRowContext(ctx,
		"SELECT "+decodedFrameColumns+" FROM decoded_frames WHERE id = $1", id)

	frame, err := scanDecodedFrame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return frame, err
}

// ListDecodedFrames lists decode log entries, newest first
func (s *PostgresStore) ListDecodedFrames(ctx context.Context, filter models.DecodedFrameFilter, limit, offset int) ([]*models.DecodedFrame, int64, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.DevAddr != "" {
		args = append(args, strings.ToLower(filter.DevAddr))
		where = append(where, fmt.Sprintf("dev_addr = $%d", len(args)))
	}
	if filter.MType != "" {
		args = append(args, filter.MType)
		where = append(where, fmt.Sprintf("m_type = $%d", len(args)))
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	// Get count
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM decoded_frames"+whereSQL, args...,
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	// Get rows
	query := fmt.Sprintf(`
        SELECT %s
        FROM decoded_frames%s
        ORDER BY received_at DESC
        LIMIT $%d OFFSET $%d`, decodedFrameColumns, whereSQL, len(args)+1, len(args)+2)

	rows, err := s.getDB().QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var frames []*models.DecodedFrame
	for rows.Next() {
		frame, err := scanDecodedFrame(rows)
		if err != nil {
			return nil, 0, err
		}
		frames = append(frames, frame)
	}

	return frames, count, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDecodedFrame(row scanner) (*models.DecodedFrame, error) {
	frame := &models.DecodedFrame{}
	var fCnt sql.NullInt64
	var fPort sql.NullInt16

	err := row.Scan(
		&frame.ID, &frame.Source, &frame.GatewayID, &frame.PHYPayload, &frame.MType,
		&frame.Direction, &frame.DevAddr, &fCnt, &fPort, &frame.FRMPayload,
		&frame.Decrypted, &frame.Object, &frame.Report, &frame.ErrorKind, &frame.Error,
		&frame.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}

	if fCnt.Valid {
		v := uint32(fCnt.Int64)
		frame.FCnt = &v
	}
	if fPort.Valid {
		v := uint8(fPort.Int16)
		frame.FPort = &v
	}

	return frame, nil
}
