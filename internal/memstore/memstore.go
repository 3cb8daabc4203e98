package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/quotient-code/collab-service/internal/domain"
)

// Store — файловое хранилище в памяти. Используется в тестах и в
// demo-режиме, когда Postgres не сконфигурирован.
type Store struct {
	mu     sync.Mutex
	files  map[int64]domain.File
	nextID int64
}

func New() *Store {
	return &Store{
		files:  make(map[int64]domain.File),
		nextID: 1,
	}
}

func (s *Store) GetFile(_ context.Context, id int64) (domain.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return domain.File{}, domain.ErrFileNotFound
	}
	return f, nil
}

func (s *Store) UpdateContent(_ context.Context, id int64, content string) (domain.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return domain.File{}, domain.ErrFileNotFound
	}
	f.Content = content
	f.LastModified = time.Now()
	s.files[id] = f
	return f, nil
}

func (s *Store) CreateFile(_ context.Context, f domain.File) (domain.File, error) {
	if f.Language == "" {
		f.Language = domain.LanguageForExt(fileExt(f.Name))
	}
	if f.Language != "" && !domain.IsSupportedLanguage(f.Language) {
		return domain.File{}, domain.ErrUnsupportedLanguage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f.ID = s.nextID
	s.nextID++
	f.LastModified = time.Now()
	s.files[f.ID] = f
	return f, nil
}

func fileExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return ""
}

// SeedDemo наполняет хранилище демо-проектом, как в прежнем редакторе.
func (s *Store) SeedDemo() {
	ctx := context.Background()
	_, _ = s.CreateFile(ctx, domain.File{
		Name:      "main.js",
		Path:      "/",
		Language:  "javascript",
		Content:   "// Welcome to Quotient Code Editor\n\nconsole.log('Hello, world!');\n",
		ProjectID: 1,
	})
	_, _ = s.CreateFile(ctx, domain.File{
		Name:      "index.html",
		Path:      "/",
		Language:  "html",
		Content:   "<!DOCTYPE html>\n<html>\n<head>\n  <title>Demo Page</title>\n</head>\n<body>\n  <h1>Welcome to Quotient</h1>\n</body>\n</html>",
		ProjectID: 1,
	})
	_, _ = s.CreateFile(ctx, domain.File{
		Name:      "style.css",
		Path:      "/",
		Language:  "css",
		Content:   "body {\n  font-family: Arial, sans-serif;\n  margin: 0;\n  padding: 20px;\n}\n",
		ProjectID: 1,
	})
}
