package collab

import (
	"context"
	"log/slog"
	"time"
)

// Supervisor периодически снимает участников, не проявлявших активность
// дольше порога. Транспортный ping/pong живёт в write-loop'е соединения;
// супервизор страхует от комнат, где соединение формально живо, но
// состояние не было вычищено (потерянный leave).
type Supervisor struct {
	reg *Registry
	bc  *Broadcaster

	interval time.Duration
	stale    time.Duration
}

func NewSupervisor(reg *Registry, bc *Broadcaster, interval, stale time.Duration) *Supervisor {
	return &Supervisor{reg: reg, bc: bc, interval: interval, stale: stale}
}

// Run крутит цикл до отмены контекста.
func (s *Supervisor) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			s.reap(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// reap выполняет один проход: эвикция + leave-рассылка + закрытие соединений.
// Путь уведомления тот же, что при обычном disconnect.
func (s *Supervisor) reap(ctx context.Context) {
	for _, ev := range s.reg.EvictStale(s.stale) {
		p := ev.Participant
		slog.Info("evicting stale participant",
			"user", p.UserID, "username", p.Username, "file", p.FileID,
			"last_activity", p.LastActivity)

		s.bc.Broadcast(ctx, p.FileID, Envelope{
			Type:      TypeLeave,
			UserID:    p.UserID,
			Username:  p.Username,
			FileID:    p.FileID,
			Data:      EmptyData,
			Timestamp: time.Now().UnixMilli(),
		}, p.UserID)

		if ev.Conn != nil {
			_ = ev.Conn.Close()
		}
	}
}
