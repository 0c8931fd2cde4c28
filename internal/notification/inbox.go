package notification

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/sentinel-alerts/internal/database"
	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/rs/zerolog"
)

// Message is one stored notification.
type Message struct {
	CreatedAt time.Time `json:"created_at"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Category  string    `json:"category"`
	ID        int64     `json:"id"`
	Read      bool      `json:"read"`
}

// Inbox stores notifications in alerts.db so owners can read them later.
type Inbox struct {
	db  *sql.DB
	now domain.Clock
	log zerolog.Logger
}

// NewInbox creates an inbox over the alerts database.
func NewInbox(db *sql.DB, log zerolog.Logger) *Inbox {
	return &Inbox{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "notifications").Logger(),
	}
}

// WithClock overrides the timestamp source.
func (i *Inbox) WithClock(clock domain.Clock) *Inbox {
	i.now = clock
	return i
}

// Notify implements domain.NotificationSink.
func (i *Inbox) Notify(ctx context.Context, ownerID, title, body, category string) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO notifications (owner_id, title, body, category, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, ownerID, title, body, category, i.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store notification for %s: %w", ownerID, err)
	}
	return nil
}

// List returns an owner's notifications, newest first.
func (i *Inbox) List(ctx context.Context, ownerID string, unreadOnly bool, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, owner_id, title, body, category, read, created_at
		FROM notifications
		WHERE owner_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := i.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var read int
		var created int64
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Title, &m.Body, &m.Category, &read, &created); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		m.Read = read == 1
		m.CreatedAt = time.Unix(created, 0).UTC()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkRead flags the given notifications as read for ownerID.
func (i *Inbox) MarkRead(ctx context.Context, ownerID string, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var total int64
	err := database.WithTransaction(ctx, i.db, func(tx *sql.Tx) error {
		for _, id := range ids {
			res, err := tx.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ? AND owner_id = ?`, id, ownerID)
			if err != nil {
				return fmt.Errorf("failed to mark notification %d read: %w", id, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// PruneOlderThan deletes notifications created before cutoff.
func (i *Inbox) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := i.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		i.log.Info().Int64("deleted", n).Msg("Pruned old notifications")
	}
	return n, nil
}
