package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Inbox stores in-app notifications.
type Inbox interface {
	Add(ctx context.Context, n Notification) error
	List(ctx context.Context, userID string) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

// PGConn is the part of *pgxpool.Pool the inbox uses.
type PGConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGInbox keeps notifications in the notifications table.
type PGInbox struct {
	conn PGConn
}

func NewPGInbox(conn PGConn) *PGInbox {
	return &PGInbox{conn: conn}
}

func (i *PGInbox) Add(ctx context.Context, n Notification) error {
	_, err := i.conn.Exec(ctx,
		`INSERT INTO notifications (user_id, type, title, body, reference) VALUES ($1, $2, $3, $4, $5)`,
		n.UserID, n.Type, n.Title, n.Body, n.Reference)
	if err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

// List returns the user's notifications, newest first.
func (i *PGInbox) List(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := i.conn.Query(ctx,
		`SELECT id::text, type, title, COALESCE(body, ''), COALESCE(reference, ''), created_at, read_at
         FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	defer rows.Close()

	var items []Notification
	for rows.Next() {
		n := Notification{UserID: userID}
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Body, &n.Reference, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, fmt.Errorf("failed to parse notification: %w", err)
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (i *PGInbox) MarkRead(ctx context.Context, userID, id string) error {
	tag, err := i.conn.Exec(ctx,
		`UPDATE notifications SET read_at = NOW() WHERE id = $1 AND user_id = $2 AND read_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MemoryInbox is the in-process Inbox used with the memory store.
type MemoryInbox struct {
	mu    sync.Mutex
	items []Notification
	now   func() time.Time
}

func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{now: time.Now}
}

func (m *MemoryInbox) Add(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now().UTC()
	}
	m.items = append(m.items, n)
	return nil
}

func (m *MemoryInbox) List(_ context.Context, userID string) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryInbox) MarkRead(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		n := &m.items[i]
		if n.ID == id && n.UserID == userID && n.ReadAt == nil {
			at := m.now().UTC()
			n.ReadAt = &at
			return nil
		}
	}
	return ErrNotificationNotFound
}
