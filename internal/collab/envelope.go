package collab

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Типы конвертов, которые ходят по коллаборационному сокету.
const (
	TypeJoin      = "join"
	TypeLeave     = "leave"
	TypeCursor    = "cursor"
	TypeSelection = "selection"
	TypeEdit      = "edit"
	TypeSave      = "save"
	TypeSaved     = "saved"      // исходящий: подтверждение сохранения
	TypeSync      = "sync"       // исходящий: начальное содержимое файла
	TypeUsersList = "users_list" // исходящий: состав комнаты
	TypeError     = "error"      // исходящий: ошибка только отправителю
)

// Envelope — единица обмена по сокету. Data зависит от Type.
type Envelope struct {
	Type      string          `json:"type"`
	UserID    int64           `json:"userId,omitempty"`
	Username  string          `json:"username,omitempty"`
	FileID    int64           `json:"fileId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Message   string          `json:"message,omitempty"` // дублирует data.message для error
}

type Position struct {
	LineNumber int `json:"lineNumber"`
	Column     int `json:"column"`
}

type Selection struct {
	StartLineNumber int `json:"startLineNumber"`
	StartColumn     int `json:"startColumn"`
	EndLineNumber   int `json:"endLineNumber"`
	EndColumn       int `json:"endColumn"`
}

type CursorPayload struct {
	Cursor Position `json:"cursor"`
}

type SelectionPayload struct {
	Selection Selection `json:"selection"`
}

type ContentPayload struct {
	Content string `json:"content"`
}

type SyncPayload struct {
	Content  string `json:"content"`
	Language string `json:"language"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// UserInfo — элемент users_list.
type UserInfo struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// EmptyData — полезная нагрузка join/leave/saved.
var EmptyData = json.RawMessage("{}")

var (
	ErrMalformed   = errors.New("invalid message format")
	ErrUnknownType = errors.New("unknown message type")
)

// Inbound — валидированный входящий конверт. Ровно одно из полей
// Cursor/Selection/Content заполнено, в зависимости от Type.
type Inbound struct {
	Envelope

	Cursor    *CursorPayload
	Selection *SelectionPayload
	Content   *ContentPayload
}

// ParseInbound разбирает и валидирует сырой фрейм. Ошибка означает, что
// фрейм надо отбросить, ответив error-конвертом; состояние не меняется.
func ParseInbound(raw []byte) (*Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrMalformed
	}

	switch env.Type {
	case TypeJoin, TypeLeave, TypeCursor, TypeSelection, TypeEdit, TypeSave:
	case "":
		return nil, fmt.Errorf("%w: type is required", ErrMalformed)
	default:
		// исходящие типы от клиента не принимаются
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if env.UserID <= 0 {
		return nil, fmt.Errorf("%w: userId is required", ErrMalformed)
	}
	if env.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrMalformed)
	}

	in := &Inbound{Envelope: env}

	switch env.Type {
	case TypeJoin:
		if env.FileID <= 0 {
			return nil, fmt.Errorf("%w: join requires fileId", ErrMalformed)
		}
	case TypeCursor:
		var p CursorPayload
		if err := decodeData(env.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: bad cursor payload", ErrMalformed)
		}
		in.Cursor = &p
	case TypeSelection:
		var p SelectionPayload
		if err := decodeData(env.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: bad selection payload", ErrMalformed)
		}
		in.Selection = &p
	case TypeEdit, TypeSave:
		var p ContentPayload
		if err := decodeData(env.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: content is required", ErrMalformed)
		}
		in.Content = &p
	}

	return in, nil
}

func decodeData(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(data, dst)
}

// MustData сериализует полезную нагрузку исходящего конверта.
// Паника невозможна для наших типов payload'ов.
func MustData(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
