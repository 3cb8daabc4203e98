package collab

import (
	"context"
	"log/slog"
)

// Relay — необязательная доставка конвертов на другие инстансы сервиса.
type Relay interface {
	Publish(ctx context.Context, fileID int64, env Envelope, excludeUserID int64) error
}

// Broadcaster — примитив рассылки по комнате. Снимает снапшот соединений
// под мьютексом реестра и пишет уже без него; порядок доставки между
// пирами не гарантируется.
type Broadcaster struct {
	reg   *Registry
	relay Relay // nil — single-instance режим
}

func NewBroadcaster(reg *Registry, relay Relay) *Broadcaster {
	return &Broadcaster{reg: reg, relay: relay}
}

// Broadcast рассылает конверт всем открытым соединениям комнаты, кроме
// excludeUserID (0 — без исключений), и публикует его в relay для других
// инстансов. Ошибка записи одному пиру не мешает остальным: такой пир
// закрывается и доберётся до обычного пути очистки.
func (b *Broadcaster) Broadcast(ctx context.Context, fileID int64, env Envelope, excludeUserID int64) {
	b.Local(fileID, env, excludeUserID)

	if b.relay == nil || !relayable(env.Type) {
		return
	}
	if err := b.relay.Publish(ctx, fileID, env, excludeUserID); err != nil {
		slog.Warn("relay publish failed", "file", fileID, "type", env.Type, "err", err)
	}
}

// relayable отсекает конверты, собранные из реестра одного инстанса:
// users_list другого инстанса неполон и перетёр бы у его клиентов
// более полный ростер. Между инстансами ходят только пировые фреймы.
func relayable(t string) bool {
	return t != TypeUsersList
}

// Local — рассылка только по этому инстансу; используется для фреймов,
// уже пришедших из relay.
func (b *Broadcaster) Local(fileID int64, env Envelope, excludeUserID int64) {
	for _, c := range b.reg.RoomConns(fileID, excludeUserID) {
		if !c.Alive() {
			continue
		}
		if err := c.Send(env); err != nil {
			slog.Debug("ws send failed, closing peer", "conn", c.ID(), "file", fileID, "err", err)
			_ = c.Close()
		}
	}
}
