package postgres

import (
	"context"
	"errors"

	"github.com/quotient-code/collab-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type FileRepository struct {
	db *pgxpool.Pool
}

func NewFileRepository(db *pgxpool.Pool) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) GetFile(ctx context.Context, id int64) (domain.File, error) {
	var f domain.File
	query := `
		SELECT id, name, content, language, project_id, path, last_modified
		FROM files WHERE id=$1`
	err := r.db.QueryRow(ctx, query, id).
		Scan(&f.ID, &f.Name, &f.Content, &f.Language, &f.ProjectID, &f.Path, &f.LastModified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.File{}, domain.ErrFileNotFound
		}
		return domain.File{}, err
	}
	return f, nil
}

// UpdateContent — безусловная перезапись (last-write-wins), заодно
// обновляет last_modified.
func (r *FileRepository) UpdateContent(ctx context.Context, id int64, content string) (domain.File, error) {
	var f domain.File
	query := `
		UPDATE files
		SET content=$2, last_modified=now()
		WHERE id=$1
		RETURNING id, name, content, language, project_id, path, last_modified`
	err := r.db.QueryRow(ctx, query, id, content).
		Scan(&f.ID, &f.Name, &f.Content, &f.Language, &f.ProjectID, &f.Path, &f.LastModified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.File{}, domain.ErrFileNotFound
		}
		return domain.File{}, err
	}
	return f, nil
}
