package notification_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/notification"
	"github.com/trezcool/shule/core/presence"
	dummydb "github.com/trezcool/shule/storage/database/dummy"
)

type broadcastCall struct {
	room    core.RoomID
	event   string
	payload interface{}
}

type fakeBroadcaster struct {
	calls []broadcastCall
}

func (b *fakeBroadcaster) Broadcast(room core.RoomID, event string, payload interface{}) {
	b.calls = append(b.calls, broadcastCall{room, event, payload})
}

type fakePush struct {
	userCalls  []string
	usersCalls [][]string
	result     core.MulticastResult
	ok         bool
}

func (p *fakePush) SendToDevice(context.Context, string, core.PushMessage) bool { return p.ok }
func (p *fakePush) SendToDevices(context.Context, []string, core.PushMessage) core.MulticastResult {
	return p.result
}
func (p *fakePush) SendToUser(_ context.Context, userID string, _ core.PushMessage) bool {
	p.userCalls = append(p.userCalls, userID)
	return p.ok
}
func (p *fakePush) SendToUsers(_ context.Context, userIDs []string, _ core.PushMessage) core.MulticastResult {
	p.usersCalls = append(p.usersCalls, userIDs)
	return p.result
}

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type failingRepo struct {
	notification.Repository
}

func (failingRepo) CreateNotification(context.Context, notification.Notification) (notification.Notification, error) {
	return notification.Notification{}, errors.New("store unavailable")
}

func setup(t *testing.T) (*notification.Service, notification.Repository, *presence.Registry, *fakeBroadcaster, *fakePush) {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)

	repo := dummydb.NewNotificationRepository(db)
	reg := presence.NewRegistry()
	bc := new(fakeBroadcaster)
	push := &fakePush{ok: true}
	svc := notification.NewService(repo, reg, bc, push, nopLogger{})
	return svc, repo, reg, bc, push
}

func TestServiceCreatePersistsExactlyOnce(t *testing.T) {
	svc, repo, _, _, _ := setup(t)
	ctx := context.Background()

	n, err := svc.Create(ctx, notification.NewNotification{
		UserID: "u1", Title: "Homework graded", Body: "Algebra II: 85%", Kind: notification.KindHomework,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Nil(t, n.ReadAt)

	notifs, err := repo.QueryUserNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, notifs, 1)
}

func TestServiceCreateSurfacesPersistenceError(t *testing.T) {
	svc := notification.NewService(failingRepo{}, presence.NewRegistry(), new(fakeBroadcaster), &fakePush{}, nopLogger{})

	_, err := svc.Create(context.Background(), notification.NewNotification{
		UserID: "u1", Title: "t", Body: "b", Kind: notification.KindExam,
	})
	require.Error(t, err)
	assert.True(t, core.IsPersistenceError(err))
}

func TestServiceLiveEmit(t *testing.T) {
	svc, _, reg, bc, _ := setup(t)
	ctx := context.Background()

	n, err := svc.Create(ctx, notification.NewNotification{
		UserID: "u1", Title: "t", Body: "b", Kind: notification.KindPayment,
	})
	require.NoError(t, err)

	// offline: skipped entirely
	svc.LiveEmit(ctx, n)
	assert.Empty(t, bc.calls)

	// online: notification + freshly recomputed unread count to the self room
	reg.AddConnection("u1", "c1")
	svc.LiveEmit(ctx, n)
	require.Len(t, bc.calls, 2)
	assert.Equal(t, core.SelfRoom("u1"), bc.calls[0].room)
	assert.Equal(t, core.EventNotification, bc.calls[0].event)
	assert.Equal(t, core.EventNotificationUnreadCount, bc.calls[1].event)
	assert.Equal(t, 1, bc.calls[1].payload)
}

func TestServiceMarkReadIdempotent(t *testing.T) {
	svc, _, _, _, _ := setup(t)
	ctx := context.Background()

	n1, err := svc.Create(ctx, notification.NewNotification{
		UserID: "u1", Title: "t1", Body: "b", Kind: notification.KindMessage,
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, notification.NewNotification{
		UserID: "u1", Title: "t2", Body: "b", Kind: notification.KindMessage,
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, n1.ID))
	count, err := svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// marking twice yields the same unread count as marking once
	require.NoError(t, svc.MarkRead(ctx, n1.ID))
	count, err = svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := svc.Get(ctx, n1.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead())
}

func TestServiceNotifyOfflineUser(t *testing.T) {
	svc, repo, _, bc, push := setup(t)
	ctx := context.Background()

	_, err := svc.Notify(ctx, notification.NewNotification{
		UserID: "u1", Title: "t", Body: "b", Kind: notification.KindHomework,
	})
	require.NoError(t, err)

	// exactly one row persisted, live-emit skipped, push attempted
	notifs, err := repo.QueryUserNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, notifs, 1)
	assert.Empty(t, bc.calls)
	assert.Equal(t, []string{"u1"}, push.userCalls)
}

func TestServiceAnnounce(t *testing.T) {
	svc, repo, reg, bc, push := setup(t)
	push.result = core.MulticastResult{Success: 1, Failed: 1}
	ctx := context.Background()

	reg.AddConnection("u1", "c1") // u1 online, u2 offline

	res := svc.Announce(ctx, "Sports day", "School closes at noon", []string{"u1", "u2"})
	assert.Equal(t, core.MulticastResult{Success: 1, Failed: 1}, res)

	for _, userID := range []string{"u1", "u2"} {
		notifs, err := repo.QueryUserNotifications(ctx, userID)
		require.NoError(t, err)
		assert.Len(t, notifs, 1, "one announcement row per recipient")
	}

	// u1's live emits + the single global announcement event
	var globalEvents int
	for _, call := range bc.calls {
		if call.room == core.RoomGlobal && call.event == core.EventAnnouncementNew {
			globalEvents++
		}
	}
	assert.Equal(t, 1, globalEvents)
	require.Len(t, push.usersCalls, 1)
	assert.Equal(t, []string{"u1", "u2"}, push.usersCalls[0])
}
