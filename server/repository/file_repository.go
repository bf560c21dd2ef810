package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"semchat/server/domain"
)

type FileRepository struct {
	pool *pgxpool.Pool
}

func NewFileRepository(pool *pgxpool.Pool) *FileRepository {
	return &FileRepository{pool: pool}
}

func (r *FileRepository) Create(ctx context.Context, item domain.FileObject) (domain.FileObject, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO files(file_id, owner_id, object_key, thumbnail_key, content_type, size_bytes)
		VALUES($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, item.ID, item.OwnerID, item.ObjectKey, item.ThumbnailKey, item.ContentType, item.SizeBytes).Scan(&item.CreatedAt)
	return item, err
}

func (r *FileRepository) Get(ctx context.Context, id string) (domain.FileObject, error) {
	var item domain.FileObject
	err := r.pool.QueryRow(ctx, `
		SELECT file_id AS id, owner_id, object_key, thumbnail_key, content_type, size_bytes, created_at
		FROM files
		WHERE file_id=$1
	`, id).Scan(&item.ID, &item.OwnerID, &item.ObjectKey, &item.ThumbnailKey, &item.ContentType, &item.SizeBytes, &item.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FileObject{}, domain.ErrNotFound
	}
	return item, err
}
