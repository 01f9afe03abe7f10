package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/notification"
)

type notificationRow struct {
	ID        string       `db:"id"`
	UserID    string       `db:"user_id"`
	Title     string       `db:"title"`
	Body      string       `db:"body"`
	Kind      string       `db:"kind"`
	CreatedAt time.Time    `db:"created_at"`
	ReadAt    sql.NullTime `db:"read_at"`
}

func (row notificationRow) toNotification() notification.Notification {
	n := notification.Notification{
		ID:        row.ID,
		UserID:    row.UserID,
		Title:     row.Title,
		Body:      row.Body,
		Kind:      row.Kind,
		CreatedAt: row.CreatedAt,
	}
	if row.ReadAt.Valid {
		at := row.ReadAt.Time
		n.ReadAt = &at
	}
	return n
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sql.DB) *notificationRepository {
	return &notificationRepository{db: sqlx.NewDb(db, "postgres")}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	n.ID = uuid.New().String()

	q := `INSERT INTO notification (id, user_id, title, body, kind, created_at)
	      VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := repo.db.ExecContext(ctx, q, n.ID, n.UserID, n.Title, n.Body, n.Kind, n.CreatedAt); err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo *notificationRepository) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	var row notificationRow
	q := `SELECT * FROM notification WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notification.Notification{}, notification.ErrNotFound
		}
		return notification.Notification{}, errors.Wrap(err, "getting notification")
	}
	return row.toNotification(), nil
}

func (repo *notificationRepository) QueryUserNotifications(ctx context.Context, userID string) ([]notification.Notification, error) {
	var rows []notificationRow
	q := `SELECT * FROM notification WHERE user_id = $1 ORDER BY created_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	notifs := make([]notification.Notification, len(rows))
	for i, row := range rows {
		notifs[i] = row.toNotification()
	}
	return notifs, nil
}

// MarkNotificationRead transitions read_at null -> timestamp exactly once;
// the row predicate keeps the update atomic and re-marks no-ops.
func (repo *notificationRepository) MarkNotificationRead(ctx context.Context, id string, at time.Time) error {
	q := `UPDATE notification SET read_at = $2 WHERE id = $1 AND read_at IS NULL`
	res, err := repo.db.ExecContext(ctx, q, id, at)
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	// nothing updated: either already read (fine) or unknown id
	var exists bool
	if err = repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM notification WHERE id = $1)`, id); err != nil {
		return errors.Wrap(err, "checking notification")
	}
	if !exists {
		return notification.ErrNotFound
	}
	return nil
}

func (repo *notificationRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	q := `SELECT COUNT(*) FROM notification WHERE user_id = $1 AND read_at IS NULL`
	if err := repo.db.GetContext(ctx, &count, q, userID); err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return count, nil
}

func (repo *notificationRepository) RegisterDeviceToken(ctx context.Context, dt notification.DeviceToken) (notification.DeviceToken, error) {
	q := `INSERT INTO device_token (token, user_id, created_at) VALUES ($1, $2, $3)
	      ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, created_at = EXCLUDED.created_at`
	if _, err := repo.db.ExecContext(ctx, q, dt.Token, dt.UserID, dt.CreatedAt); err != nil {
		return notification.DeviceToken{}, errors.Wrap(err, "registering device token")
	}
	return dt, nil
}

func (repo *notificationRepository) ListDeviceTokens(ctx context.Context, userIDs ...string) ([]notification.DeviceToken, error) {
	var rows []struct {
		Token     string    `db:"token"`
		UserID    string    `db:"user_id"`
		CreatedAt time.Time `db:"created_at"`
	}
	q := `SELECT * FROM device_token WHERE user_id = ANY($1) ORDER BY token`
	if err := repo.db.SelectContext(ctx, &rows, q, pq.Array(userIDs)); err != nil {
		return nil, errors.Wrap(err, "listing device tokens")
	}
	tokens := make([]notification.DeviceToken, len(rows))
	for i, row := range rows {
		tokens[i] = notification.DeviceToken{Token: row.Token, UserID: row.UserID, CreatedAt: row.CreatedAt}
	}
	return tokens, nil
}

func (repo *notificationRepository) DeleteDeviceTokens(ctx context.Context, tokens ...string) error {
	if len(tokens) == 0 {
		return nil
	}
	q := `DELETE FROM device_token WHERE token = ANY($1)`
	if _, err := repo.db.ExecContext(ctx, q, pq.Array(tokens)); err != nil {
		return errors.Wrap(err, "deleting device tokens")
	}
	return nil
}
