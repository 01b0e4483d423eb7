package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

// Images stores business card photos by content hash.
type Images struct {
	db *sql.DB
}

// NewImages creates an image store over db.
func NewImages(db *sql.DB) *Images {
	return &Images{db: db}
}

// Put stores data and returns its reference. Storing the same bytes twice is a no-op.
func (s *Images) Put(ctx context.Context, data []byte, mimeType string) (string, error) {
	ref := lead.ImageRef(data)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO card_images (ref, mime_type, data, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(ref) DO NOTHING`,
		ref, mimeType, data, time.Now().UnixMilli())
	if err != nil {
		return "", errors.NewStorage(err)
	}
	return ref, nil
}

// Get returns the image bytes and MIME type for ref.
func (s *Images) Get(ctx context.Context, ref string) ([]byte, string, error) {
	var data []byte
	var mimeType string
	err := s.db.QueryRowContext(ctx, `SELECT data, mime_type FROM card_images WHERE ref = ?`, ref).Scan(&data, &mimeType)
	if err == sql.ErrNoRows {
		return nil, "", errors.NewNotFound("card image", ref)
	}
	if err != nil {
		return nil, "", errors.NewStorage(err)
	}
	return data, mimeType, nil
}
