package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quotient-code/collab-service/internal/collab"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "collab:file:"

// frame — конверт плюс метаданные доставки между инстансами.
// Instance нужен, чтобы не принимать собственные публикации.
type frame struct {
	Instance string          `json:"instance"`
	FileID   int64           `json:"fileId"`
	Exclude  int64           `json:"exclude,omitempty"`
	Envelope collab.Envelope `json:"envelope"`
}

// Redis ретранслирует конверты комнат между инстансами сервиса через
// pub/sub, по каналу на файл. Отправитель считается локальным для
// инстанса-источника: повторная публикация принятых фреймов не делается.
type Redis struct {
	client   *redis.Client
	instance string
}

func New(client *redis.Client) *Redis {
	return &Redis{
		client:   client,
		instance: uuid.NewString(),
	}
}

func (r *Redis) Publish(ctx context.Context, fileID int64, env collab.Envelope, excludeUserID int64) error {
	b, err := json.Marshal(frame{
		Instance: r.instance,
		FileID:   fileID,
		Exclude:  excludeUserID,
		Envelope: env,
	})
	if err != nil {
		return fmt.Errorf("marshal relay frame: %w", err)
	}
	return r.client.Publish(ctx, channel(fileID), b).Err()
}

// Run подписывается на все файловые каналы и отдаёт чужие фреймы в deliver.
// Блокируется до отмены контекста.
func (r *Redis) Run(ctx context.Context, deliver func(fileID int64, env collab.Envelope, excludeUserID int64)) {
	pubsub := r.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var f frame
			if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
				slog.Warn("relay: dropping malformed frame", "channel", msg.Channel, "err", err)
				continue
			}
			if f.Instance == r.instance {
				continue
			}
			if !strings.HasPrefix(msg.Channel, channelPrefix) {
				continue
			}
			deliver(f.FileID, f.Envelope, f.Exclude)
		case <-ctx.Done():
			return
		}
	}
}

func channel(fileID int64) string {
	return fmt.Sprintf("%s%d", channelPrefix, fileID)
}
