package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core/notification"
)

type notificationRepository struct {
	db     *notificationTable
	tokens *deviceTokenTable
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db.notification, tokens: db.deviceToken}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	n.ID = uuid.New().String()
	repo.db.table[n.ID] = &n
	return n, nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, id string) (notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if n, ok := repo.db.table[id]; ok {
		return *n, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) QueryUserNotifications(_ context.Context, userID string) ([]notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	notifs := make([]notification.Notification, 0)
	for _, n := range repo.db.table {
		if n.UserID == userID {
			notifs = append(notifs, *n)
		}
	}
	sort.Slice(notifs, func(i, j int) bool { return notifs[i].CreatedAt.After(notifs[j].CreatedAt) })
	return notifs, nil
}

func (repo *notificationRepository) MarkNotificationRead(_ context.Context, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	n, ok := repo.db.table[id]
	if !ok {
		return notification.ErrNotFound
	}
	if n.ReadAt == nil { // null -> timestamp exactly once
		n.ReadAt = &at
	}
	return nil
}

func (repo *notificationRepository) UnreadCount(_ context.Context, userID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, n := range repo.db.table {
		if n.UserID == userID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) RegisterDeviceToken(_ context.Context, dt notification.DeviceToken) (notification.DeviceToken, error) {
	repo.tokens.Lock()
	defer repo.tokens.Unlock()

	repo.tokens.table[dt.Token] = &dt
	return dt, nil
}

func (repo *notificationRepository) ListDeviceTokens(_ context.Context, userIDs ...string) ([]notification.DeviceToken, error) {
	repo.tokens.RLock()
	defer repo.tokens.RUnlock()

	tokens := make([]notification.DeviceToken, 0)
	for _, dt := range repo.tokens.table {
		for _, userID := range userIDs {
			if dt.UserID == userID {
				tokens = append(tokens, *dt)
				break
			}
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Token < tokens[j].Token })
	return tokens, nil
}

func (repo *notificationRepository) DeleteDeviceTokens(_ context.Context, tokens ...string) error {
	repo.tokens.Lock()
	defer repo.tokens.Unlock()

	for _, token := range tokens {
		delete(repo.tokens.table, token)
	}
	return nil
}
