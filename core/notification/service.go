package notification

import (
	"context"
	"errors"
	"time"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrNotFound = errors.New("notification not found")
)

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		GetNotification(ctx context.Context, id string) (Notification, error)
		QueryUserNotifications(ctx context.Context, userID string) ([]Notification, error)
		// MarkNotificationRead sets ReadAt if and only if it is still null;
		// the update must be atomic per row and idempotent.
		MarkNotificationRead(ctx context.Context, id string, at time.Time) error
		// UnreadCount recomputes the count from the store. There is no
		// cached counter anywhere that could drift.
		UnreadCount(ctx context.Context, userID string) (int, error)

		RegisterDeviceToken(ctx context.Context, dt DeviceToken) (DeviceToken, error)
		ListDeviceTokens(ctx context.Context, userIDs ...string) ([]DeviceToken, error)
		DeleteDeviceTokens(ctx context.Context, tokens ...string) error
	}

	// Presence answers whether a user currently holds a live connection.
	Presence interface {
		IsOnline(userID string) bool
	}

	// Service is the notification dispatch engine. Create persists exactly
	// once; LiveEmit and PushSend are independent best-effort channels that
	// business code may combine freely - consumers of delivered events must
	// tolerate duplicates, no de-duplication happens between channels.
	Service struct {
		repo        Repository
		presence    Presence
		broadcaster core.Broadcaster
		push        core.PushService
		logger      core.Logger
	}
)

func NewService(repo Repository, presence Presence, broadcaster core.Broadcaster, push core.PushService, logger core.Logger) *Service {
	return &Service{
		repo:        repo,
		presence:    presence,
		broadcaster: broadcaster,
		push:        push,
		logger:      logger,
	}
}

// Create persists the notification record. This always happens regardless of
// presence or token state; a store failure is the only fatal outcome of the
// subsystem and surfaces as a persistence error.
func (svc *Service) Create(ctx context.Context, nn NewNotification) (Notification, error) {
	n := Notification{
		UserID:    nn.UserID,
		Title:     nn.Title,
		Body:      nn.Body,
		Kind:      nn.Kind,
		CreatedAt: time.Now().UTC(),
	}
	n, err := svc.repo.CreateNotification(ctx, n)
	if err != nil {
		return Notification{}, core.NewPersistenceError("creating notification", err)
	}
	return n, nil
}

// LiveEmit delivers the notification and a freshly recomputed unread count
// over the live channel. A no-op when the user is offline: persistence and
// push are the durability path, the live channel never queues or retries.
func (svc *Service) LiveEmit(ctx context.Context, n Notification) {
	if !svc.presence.IsOnline(n.UserID) {
		return
	}
	room := core.SelfRoom(n.UserID)
	svc.broadcaster.Broadcast(room, core.EventNotification, n)
	svc.emitUnreadCount(ctx, room, n.UserID)
}

// PushSend delivers the payload to all of the user's registered devices.
func (svc *Service) PushSend(ctx context.Context, userID string, msg core.PushMessage) bool {
	return svc.push.SendToUser(ctx, userID, msg)
}

// PushSendMany multicasts the payload to the registered devices of all users.
func (svc *Service) PushSendMany(ctx context.Context, userIDs []string, msg core.PushMessage) core.MulticastResult {
	return svc.push.SendToUsers(ctx, userIDs, msg)
}

// Notify is the common create-then-deliver path: persist once, then fire
// both channels independently. Either send may silently reach nobody; the
// record stays queryable.
func (svc *Service) Notify(ctx context.Context, nn NewNotification) (Notification, error) {
	n, err := svc.Create(ctx, nn)
	if err != nil {
		return Notification{}, err
	}
	svc.LiveEmit(ctx, n)
	svc.PushSend(ctx, n.UserID, nn.PushMessage())
	return n, nil
}

// MarkRead transitions ReadAt null -> now exactly once; re-marks are no-ops.
// The owner's live connections get the recomputed unread count.
func (svc *Service) MarkRead(ctx context.Context, id string) error {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.repo.MarkNotificationRead(ctx, id, time.Now().UTC()); err != nil {
		return core.NewPersistenceError("marking notification read", err)
	}
	if svc.presence.IsOnline(n.UserID) {
		svc.emitUnreadCount(ctx, core.SelfRoom(n.UserID), n.UserID)
	}
	return nil
}

func (svc *Service) Get(ctx context.Context, id string) (Notification, error) {
	return svc.repo.GetNotification(ctx, id)
}

func (svc *Service) Query(ctx context.Context, userID string) ([]Notification, error) {
	return svc.repo.QueryUserNotifications(ctx, userID)
}

func (svc *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return svc.repo.UnreadCount(ctx, userID)
}

// RegisterDevice upserts a device token for the user.
func (svc *Service) RegisterDevice(ctx context.Context, userID, token string) (DeviceToken, error) {
	dt := DeviceToken{
		UserID:    userID,
		Token:     token,
		CreatedAt: time.Now().UTC(),
	}
	dt, err := svc.repo.RegisterDeviceToken(ctx, dt)
	if err != nil {
		return DeviceToken{}, core.NewPersistenceError("registering device token", err)
	}
	return dt, nil
}

// Announce persists a notification per recipient, emits the announcement to
// the global room once, and multicasts one push batch. Recipients whose
// record cannot be persisted are skipped and logged; the announcement still
// reaches the rest.
func (svc *Service) Announce(ctx context.Context, title, body string, recipientIDs []string) core.MulticastResult {
	nn := NewNotification{Title: title, Body: body, Kind: KindAnnouncement}

	notified := make([]string, 0, len(recipientIDs))
	for _, userID := range recipientIDs {
		nn.UserID = userID
		n, err := svc.Create(ctx, nn)
		if err != nil {
			svc.logger.Error("announce: creating notification for "+userID, err)
			continue
		}
		svc.LiveEmit(ctx, n)
		notified = append(notified, userID)
	}

	svc.broadcaster.Broadcast(core.RoomGlobal, core.EventAnnouncementNew, map[string]string{
		"title": title,
		"body":  body,
	})
	return svc.PushSendMany(ctx, notified, nn.PushMessage())
}

func (svc *Service) emitUnreadCount(ctx context.Context, room core.RoomID, userID string) {
	count, err := svc.repo.UnreadCount(ctx, userID)
	if err != nil {
		svc.logger.Error("recomputing unread count for "+userID, err)
		return
	}
	svc.broadcaster.Broadcast(room, core.EventNotificationUnreadCount, count)
}
