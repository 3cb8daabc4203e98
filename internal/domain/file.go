package domain

import "time"

type File struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	Content      string    `db:"content"`
	Language     string    `db:"language"`
	ProjectID    int64     `db:"project_id"`
	Path         string    `db:"path"`
	LastModified time.Time `db:"last_modified"`
}
