package collab

import (
	"sync"
	"time"
)

// Conn — исходящая сторона одного клиентского соединения.
// Реализация обязана быть безопасной для конкурентных Send.
type Conn interface {
	ID() string
	Send(env Envelope) error
	Alive() bool
	Close() error
}

// Participant — живое состояние одного участника в комнате.
type Participant struct {
	UserID       int64
	Username     string
	FileID       int64
	Cursor       *Position
	Selection    *Selection
	LastActivity time.Time
}

type room struct {
	fileID       int64
	participants map[int64]*Participant
	conns        map[int64]Conn
}

type binding struct {
	conn   Conn
	userID int64
	fileID int64
}

// Registry — in-memory источник правды о составе комнат и живом состоянии
// курсоров/выделений. Держит двусторонний индекс connID <-> (userID, fileID),
// чтобы не искать соединение линейным проходом на каждом сообщении.
// Мьютекс закрывает только мутацию карт и никогда не держится через I/O.
type Registry struct {
	mu    sync.Mutex
	rooms map[int64]*room     // fileID -> room
	conns map[string]*binding // connID -> binding

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[int64]*room),
		conns: make(map[string]*binding),
		now:   time.Now,
	}
}

// Join добавляет участника в комнату файла. Если соединение уже состояло в
// другой комнате, оно сначала удаляется оттуда; удалённый участник
// возвращается, чтобы вызывающий разослал синтетический leave старой комнате.
// Повторный join в ту же комнату лишь обновляет активность.
func (r *Registry) Join(c Conn, userID int64, username string, fileID int64) (prev *Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.conns[c.ID()]; ok && b.fileID != fileID {
		prev = r.removeLocked(c, b)
	}

	rm, ok := r.rooms[fileID]
	if !ok {
		rm = &room{
			fileID:       fileID,
			participants: make(map[int64]*Participant),
			conns:        make(map[int64]Conn),
		}
		r.rooms[fileID] = rm
	}

	// Второе соединение того же пользователя вытесняет первое.
	if old, ok := rm.conns[userID]; ok && old.ID() != c.ID() {
		delete(r.conns, old.ID())
	}

	rm.participants[userID] = &Participant{
		UserID:       userID,
		Username:     username,
		FileID:       fileID,
		LastActivity: r.now(),
	}
	rm.conns[userID] = c
	r.conns[c.ID()] = &binding{conn: c, userID: userID, fileID: fileID}

	return prev
}

// RecordCursor обновляет позицию курсора. Возвращает false (и ничего не
// меняет), если участник не состоит в комнате fileID — защита от
// устаревших фреймов после leave.
func (r *Registry) RecordCursor(userID, fileID int64, pos Position) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.memberLocked(userID, fileID)
	if p == nil {
		return false
	}
	c := pos
	p.Cursor = &c
	p.LastActivity = r.now()
	return true
}

func (r *Registry) RecordSelection(userID, fileID int64, sel Selection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.memberLocked(userID, fileID)
	if p == nil {
		return false
	}
	s := sel
	p.Selection = &s
	p.LastActivity = r.now()
	return true
}

// Touch обновляет активность участника по его соединению (pong, edit, save).
func (r *Registry) Touch(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.conns[c.ID()]
	if !ok {
		return
	}
	if p := r.memberLocked(b.userID, b.fileID); p != nil {
		p.LastActivity = r.now()
	}
}

// FileOf возвращает комнату, в которой состоит соединение.
func (r *Registry) FileOf(c Conn) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.conns[c.ID()]
	if !ok {
		return 0, false
	}
	return b.fileID, true
}

// Leave удаляет участника, привязанного к соединению, из его комнаты.
// Возвращает удалённого участника или nil; повторный вызов — no-op.
func (r *Registry) Leave(c Conn) *Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.conns[c.ID()]
	if !ok {
		return nil
	}
	return r.removeLocked(c, b)
}

// Participants возвращает снапшот (копии) участников комнаты,
// опционально исключая одного пользователя (0 — никого).
func (r *Registry) Participants(fileID, excludeUserID int64) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[fileID]
	if !ok {
		return nil
	}
	out := make([]Participant, 0, len(rm.participants))
	for _, p := range rm.participants {
		if p.UserID == excludeUserID {
			continue
		}
		out = append(out, snapshot(p))
	}
	return out
}

// RoomConns возвращает снапшот соединений комнаты для рассылки.
func (r *Registry) RoomConns(fileID, excludeUserID int64) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[fileID]
	if !ok {
		return nil
	}
	out := make([]Conn, 0, len(rm.conns))
	for uid, c := range rm.conns {
		if uid == excludeUserID {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Eviction — участник, снятый по неактивности, вместе с его соединением.
type Eviction struct {
	Participant Participant
	Conn        Conn
}

// EvictStale удаляет участников, чья активность старше порога,
// вместе с привязкой их соединений.
func (r *Registry) EvictStale(threshold time.Duration) []Eviction {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-threshold)
	var out []Eviction
	for _, rm := range r.rooms {
		for uid, p := range rm.participants {
			if !p.LastActivity.Before(cutoff) {
				continue
			}
			c := rm.conns[uid]
			out = append(out, Eviction{Participant: snapshot(p), Conn: c})
			if c != nil {
				if b, ok := r.conns[c.ID()]; ok {
					r.removeLocked(c, b)
					continue
				}
			}
			delete(rm.participants, uid)
			delete(rm.conns, uid)
		}
	}
	// removeLocked мог опустошить комнаты
	for id, rm := range r.rooms {
		if len(rm.participants) == 0 {
			delete(r.rooms, id)
		}
	}
	return out
}

func (r *Registry) memberLocked(userID, fileID int64) *Participant {
	rm, ok := r.rooms[fileID]
	if !ok {
		return nil
	}
	return rm.participants[userID]
}

// removeLocked снимает binding и участника; пустая комната удаляется.
// Если пользователя в комнате уже представляет другое соединение,
// удаляется только binding.
func (r *Registry) removeLocked(c Conn, b *binding) *Participant {
	delete(r.conns, c.ID())

	rm, ok := r.rooms[b.fileID]
	if !ok {
		return nil
	}
	cur, ok := rm.conns[b.userID]
	if !ok || cur.ID() != c.ID() {
		return nil
	}

	p := rm.participants[b.userID]
	delete(rm.participants, b.userID)
	delete(rm.conns, b.userID)
	if len(rm.participants) == 0 {
		delete(r.rooms, b.fileID)
	}
	if p == nil {
		return nil
	}
	out := snapshot(p)
	return &out
}

func snapshot(p *Participant) Participant {
	out := *p
	if p.Cursor != nil {
		c := *p.Cursor
		out.Cursor = &c
	}
	if p.Selection != nil {
		s := *p.Selection
		out.Selection = &s
	}
	return out
}
