package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/quotient-code/collab-service/internal/collab"
	"github.com/quotient-code/collab-service/internal/domain"

	"github.com/gorilla/websocket"
)

// ContentSvc — контент-часть, которую потребляет сокет-сервер.
type ContentSvc interface {
	GetFile(ctx context.Context, id int64) (domain.File, error)
	Apply(ctx context.Context, fileID int64, content string) error
	ApplyAsync(fileID int64, content string, onErr func(error))
}

type Options struct {
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

func (o *Options) defaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 1 << 20
	}
}

type Server struct {
	upgrader websocket.Upgrader
	reg      *collab.Registry
	bc       *collab.Broadcaster
	content  ContentSvc
	opts     Options
}

func NewServer(reg *collab.Registry, bc *collab.Broadcaster, content ContentSvc, opts Options) *Server {
	opts.defaults()
	return &Server{
		reg:     reg,
		bc:      bc,
		content: content,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// WS endpoint: GET /ws. Идентичность утверждается клиентом в join-конверте;
// авторизация — забота внешнего слоя.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWSConn(conn, s.opts.WriteTimeout)
	slog.Debug("ws client connected", "conn", c.ID())

	go s.writeLoop(r.Context(), c)
	s.readLoop(r.Context(), c)

	// disconnect == неявный leave
	s.handleLeave(r.Context(), c)

	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "conn", c.ID(), "err", err)
	}
	slog.Debug("ws client disconnected", "conn", c.ID())
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(s.opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.opts.PingInterval))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.opts.PingInterval))
		s.reg.Touch(c)
		return nil
	})

	// фреймы одного соединения обрабатываются строго по порядку прихода
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		s.dispatch(ctx, c, data)
	}
}

func (s *Server) writeLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout))
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

// dispatch проверяет фрейм и выполняет его. Невалидный фрейм отбрасывается
// с error-конвертом отправителю; состояние не меняется, соединение живёт.
func (s *Server) dispatch(ctx context.Context, c collab.Conn, raw []byte) {
	in, err := collab.ParseInbound(raw)
	if err != nil {
		s.sendError(c, err.Error())
		return
	}

	switch in.Type {
	case collab.TypeJoin:
		s.handleJoin(ctx, c, in)
	case collab.TypeCursor:
		s.handleCursor(ctx, c, in)
	case collab.TypeSelection:
		s.handleSelection(ctx, c, in)
	case collab.TypeEdit:
		s.handleEdit(ctx, c, in)
	case collab.TypeSave:
		s.handleSave(ctx, c, in)
	case collab.TypeLeave:
		s.handleLeave(ctx, c)
	}
}

func (s *Server) handleJoin(ctx context.Context, c collab.Conn, in *collab.Inbound) {
	prev := s.reg.Join(c, in.UserID, in.Username, in.FileID)
	if prev != nil {
		// join в другой файл — синтетический leave старой комнате
		s.bc.Broadcast(ctx, prev.FileID, leaveEnvelope(*prev), prev.UserID)
	}

	// состав комнаты: вошедшему целиком, остальным — обновление
	if err := c.Send(s.usersList(in.FileID)); err != nil {
		slog.Debug("ws send users_list failed", "conn", c.ID(), "err", err)
	}
	s.bc.Broadcast(ctx, in.FileID, s.usersList(in.FileID), in.UserID)

	// одноразовый sync: вошедший получает текущее содержимое файла
	f, err := s.content.GetFile(ctx, in.FileID)
	if err != nil {
		if errors.Is(err, domain.ErrFileNotFound) {
			s.sendError(c, "file not found")
		} else {
			slog.Error("ws sync fetch failed", "file", in.FileID, "err", err)
			s.sendError(c, "failed to load file")
		}
	} else {
		sync := collab.Envelope{
			Type:      collab.TypeSync,
			FileID:    in.FileID,
			Data:      collab.MustData(collab.SyncPayload{Content: f.Content, Language: f.Language}),
			Timestamp: nowMillis(),
		}
		if err := c.Send(sync); err != nil {
			slog.Debug("ws send sync failed", "conn", c.ID(), "err", err)
		}
	}

	slog.Info("user joined file", "user", in.UserID, "username", in.Username, "file", in.FileID)
}

func (s *Server) handleCursor(ctx context.Context, c collab.Conn, in *collab.Inbound) {
	fileID, ok := s.resolveFile(c, in.FileID)
	if !ok {
		return
	}
	if !s.reg.RecordCursor(in.UserID, fileID, in.Cursor.Cursor) {
		return
	}
	s.forward(ctx, in, fileID)
}

func (s *Server) handleSelection(ctx context.Context, c collab.Conn, in *collab.Inbound) {
	fileID, ok := s.resolveFile(c, in.FileID)
	if !ok {
		return
	}
	if !s.reg.RecordSelection(in.UserID, fileID, in.Selection.Selection) {
		return
	}
	s.forward(ctx, in, fileID)
}

func (s *Server) handleEdit(ctx context.Context, c collab.Conn, in *collab.Inbound) {
	fileID, ok := s.resolveFile(c, in.FileID)
	if !ok {
		return
	}
	s.reg.Touch(c)

	// сначала рассылка, персистентность её не блокирует
	s.forward(ctx, in, fileID)

	s.content.ApplyAsync(fileID, in.Content.Content, func(err error) {
		s.sendError(c, "failed to store edit: "+err.Error())
	})
}

func (s *Server) handleSave(ctx context.Context, c collab.Conn, in *collab.Inbound) {
	fileID, ok := s.resolveFile(c, in.FileID)
	if !ok {
		return
	}
	s.reg.Touch(c)

	s.forward(ctx, in, fileID)

	if err := s.content.Apply(ctx, fileID, in.Content.Content); err != nil {
		s.sendError(c, "failed to save file: "+err.Error())
		return
	}

	// подтверждение всем, включая отправителя
	s.bc.Broadcast(ctx, fileID, collab.Envelope{
		Type:      collab.TypeSaved,
		UserID:    in.UserID,
		Username:  in.Username,
		FileID:    fileID,
		Data:      collab.EmptyData,
		Timestamp: nowMillis(),
	}, 0)
}

func (s *Server) handleLeave(ctx context.Context, c collab.Conn) {
	p := s.reg.Leave(c)
	if p == nil {
		return
	}
	s.bc.Broadcast(ctx, p.FileID, leaveEnvelope(*p), p.UserID)
	slog.Info("user left file", "user", p.UserID, "username", p.Username, "file", p.FileID)
}

// resolveFile сверяет fileId конверта с текущей комнатой соединения.
// Пустой fileId трактуется как «текущая комната»; расхождение — устаревший
// фрейм, молча отбрасывается.
func (s *Server) resolveFile(c collab.Conn, stated int64) (int64, bool) {
	cur, ok := s.reg.FileOf(c)
	if !ok {
		return 0, false
	}
	if stated != 0 && stated != cur {
		return 0, false
	}
	return cur, true
}

// forward ретранслирует входящий конверт остальным участникам комнаты.
// Отправителю эхо не возвращается.
func (s *Server) forward(ctx context.Context, in *collab.Inbound, fileID int64) {
	out := in.Envelope
	out.FileID = fileID
	if out.Timestamp == 0 {
		out.Timestamp = nowMillis()
	}
	s.bc.Broadcast(ctx, fileID, out, in.UserID)
}

func (s *Server) usersList(fileID int64) collab.Envelope {
	parts := s.reg.Participants(fileID, 0)
	infos := make([]collab.UserInfo, 0, len(parts))
	for _, p := range parts {
		infos = append(infos, collab.UserInfo{UserID: p.UserID, Username: p.Username})
	}
	return collab.Envelope{
		Type:      collab.TypeUsersList,
		FileID:    fileID,
		Data:      collab.MustData(infos),
		Timestamp: nowMillis(),
	}
}

func (s *Server) sendError(c collab.Conn, msg string) {
	env := collab.Envelope{
		Type:      collab.TypeError,
		Data:      collab.MustData(collab.ErrorPayload{Message: msg}),
		Message:   msg,
		Timestamp: nowMillis(),
	}
	if err := c.Send(env); err != nil {
		slog.Debug("ws send error envelope failed", "conn", c.ID(), "err", err)
	}
}

func leaveEnvelope(p collab.Participant) collab.Envelope {
	return collab.Envelope{
		Type:      collab.TypeLeave,
		UserID:    p.UserID,
		Username:  p.Username,
		FileID:    p.FileID,
		Data:      collab.EmptyData,
		Timestamp: nowMillis(),
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
