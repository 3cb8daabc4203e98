package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quotient-code/collab-service/internal/domain"
)

// FileStore — внешний владелец содержимого файлов.
type FileStore interface {
	GetFile(ctx context.Context, id int64) (domain.File, error)
	UpdateContent(ctx context.Context, id int64, content string) (domain.File, error)
}

// ContentService — единственный писатель содержимого файлов на live-пути.
// Семантика last-write-wins: никакого сравнения версий и merge, хранится
// последняя применённая запись. Применения к одному файлу сериализуются
// FIFO-очередью, чтобы порядок в хранилище совпадал с порядком обработки;
// разные файлы независимы.
type ContentService struct {
	store        FileStore
	applyTimeout time.Duration

	mu     sync.Mutex
	queues map[int64]*editQueue
}

type editQueue struct {
	tasks []editTask
}

type editTask struct {
	content string
	done    chan error   // синхронный вызов (save)
	onErr   func(error)  // асинхронный вызов (edit); только при ошибке
}

func NewContentService(store FileStore) *ContentService {
	return &ContentService{
		store:        store,
		applyTimeout: 10 * time.Second,
		queues:       make(map[int64]*editQueue),
	}
}

func (s *ContentService) GetFile(ctx context.Context, id int64) (domain.File, error) {
	f, err := s.store.GetFile(ctx, id)
	if err != nil {
		return domain.File{}, fmt.Errorf("get file %d: %w", id, err)
	}
	return f, nil
}

// Apply перезаписывает содержимое файла и ждёт результата. Используется на
// пути save, где клиенту нужен ack.
func (s *ContentService) Apply(ctx context.Context, fileID int64, content string) error {
	done := make(chan error, 1)
	s.enqueue(fileID, editTask{content: content, done: done})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// запись всё равно применится в свою очередь
		return ctx.Err()
	}
}

// ApplyAsync ставит перезапись в очередь и возвращается сразу; onErr
// вызывается только при ошибке хранилища. Используется на пути edit,
// где рассылка пирам не должна ждать персистентности.
func (s *ContentService) ApplyAsync(fileID int64, content string, onErr func(error)) {
	s.enqueue(fileID, editTask{content: content, onErr: onErr})
}

// enqueue добавляет задачу в очередь файла; первый вставший запускает
// воркер, который выгребает очередь по одному.
func (s *ContentService) enqueue(fileID int64, t editTask) {
	s.mu.Lock()
	q, running := s.queues[fileID]
	if !running {
		q = &editQueue{}
		s.queues[fileID] = q
	}
	q.tasks = append(q.tasks, t)
	s.mu.Unlock()

	if !running {
		go s.drain(fileID)
	}
}

func (s *ContentService) drain(fileID int64) {
	for {
		s.mu.Lock()
		q := s.queues[fileID]
		if len(q.tasks) == 0 {
			delete(s.queues, fileID)
			s.mu.Unlock()
			return
		}
		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		s.mu.Unlock()

		err := s.apply(fileID, t.content)
		switch {
		case t.done != nil:
			t.done <- err
		case err != nil && t.onErr != nil:
			t.onErr(err)
		}
	}
}

func (s *ContentService) apply(fileID int64, content string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.applyTimeout)
	defer cancel()

	if _, err := s.store.UpdateContent(ctx, fileID, content); err != nil {
		// пиры уже получили фрейм; расхождение live-вида и хранилища
		// допустимо при last-write-wins, но должно быть видно в логах
		slog.Warn("content apply failed, in-memory view diverges from storage",
			"file", fileID, "err", err)
		return fmt.Errorf("apply content to file %d: %w", fileID, err)
	}
	return nil
}
