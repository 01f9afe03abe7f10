package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/notification"
	"github.com/trezcool/shule/core/presence"
	"github.com/trezcool/shule/core/user"
	pushsvc "github.com/trezcool/shule/services/push"
	"github.com/trezcool/shule/services/ws"
	dummydb "github.com/trezcool/shule/storage/database/dummy"
)

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type testServer struct {
	srv       *Server
	usrSvc    *user.Service
	notifSvc  *notification.Service
	tokenAuth *user.TokenAuthority
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)

	conf := &core.Config{
		TestMode:  true,
		AppName:   "Shule",
		SecretKey: []byte("poq5-wer"),
		Server:    core.ServerConfig{JWTExpirationDelta: time.Hour},
	}

	db, err := dummydb.Open()
	require.NoError(t, err)
	usrSvc := user.NewService(dummydb.NewUserRepository(db))
	notifRepo := dummydb.NewNotificationRepository(db)

	registry := presence.NewRegistry()
	hub := ws.NewHub(registry, nopLogger{})
	notifSvc := notification.NewService(notifRepo, registry, hub, pushsvc.NewConsoleServiceMock(), nopLogger{})

	tokenAuth := user.NewTokenAuthority(conf)
	gateway := ws.NewGateway(hub, tokenAuth, notifSvc, nopLogger{})

	srv := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         nopLogger{},
		UserSvc:        usrSvc,
		NotifSvc:       notifSvc,
		Gateway:        gateway,
		TokenAuth:      tokenAuth,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	t.Cleanup(hub.Close)

	return &testServer{srv: srv, usrSvc: usrSvc, notifSvc: notifSvc, tokenAuth: tokenAuth}
}

func (ts *testServer) createUser(t *testing.T, uname string, roles ...string) user.User {
	t.Helper()

	usr, err := ts.usrSvc.Create(context.Background(), user.NewUser{
		Name:            "Test " + uname,
		Username:        uname,
		Email:           uname + "@shule.test",
		Password:        "LocalHer0!",
		PasswordConfirm: "LocalHer0!",
		Roles:           roles,
	})
	require.NoError(t, err)
	return usr
}

func (ts *testServer) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := ts.tokenAuth.GenerateToken(ts.tokenAuth.GetUserClaims(usr))
	require.NoError(t, err)
	return token
}

func (ts *testServer) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echoHeaderContentType, "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func TestHome(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Shule API!", rec.Body.String())
}

func TestAuthLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "awesome", user.RoleStudent)

	tests := []struct {
		name     string
		body     interface{}
		wantCode int
	}{
		{"valid credentials", LoginRequest{Username: "awesome", Password: "LocalHer0!"}, http.StatusOK},
		{"valid email login", LoginRequest{Username: "awesome@shule.test", Password: "LocalHer0!"}, http.StatusOK},
		{"wrong password", LoginRequest{Username: "awesome", Password: "nope"}, http.StatusUnauthorized},
		{"unknown user", LoginRequest{Username: "ghost", Password: "LocalHer0!"}, http.StatusUnauthorized},
		{"missing fields", LoginRequest{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.request(t, http.MethodPost, "/v1/auth/login", "", tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func TestNotificationAPIRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/v1/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotificationQueryAndUnreadCount(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	usr := ts.createUser(t, "awesome", user.RoleStudent)
	other := ts.createUser(t, "someoneelse", user.RoleStudent)

	for _, nn := range []notification.NewNotification{
		{UserID: usr.ID, Title: "Homework due", Kind: notification.KindHomework},
		{UserID: usr.ID, Title: "Exam scheduled", Kind: notification.KindExam},
		{UserID: other.ID, Title: "Fees due", Kind: notification.KindPayment},
	} {
		_, err := ts.notifSvc.Create(ctx, nn)
		require.NoError(t, err)
	}
	token := ts.token(t, usr)

	rec := ts.request(t, http.MethodGet, "/v1/notifications", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notifs []notification.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notifs))
	require.Len(t, notifs, 2, "only own notifications are listed")

	rec = ts.request(t, http.MethodGet, "/v1/notifications/unread-count", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count UnreadCountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &count))
	assert.Equal(t, 2, count.Count)
}

func TestNotificationMarkRead(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	usr := ts.createUser(t, "awesome", user.RoleStudent)
	other := ts.createUser(t, "someoneelse", user.RoleStudent)

	mine, err := ts.notifSvc.Create(ctx, notification.NewNotification{
		UserID: usr.ID, Title: "Homework due", Kind: notification.KindHomework})
	require.NoError(t, err)
	foreign, err := ts.notifSvc.Create(ctx, notification.NewNotification{
		UserID: other.ID, Title: "Fees due", Kind: notification.KindPayment})
	require.NoError(t, err)
	token := ts.token(t, usr)

	rec := ts.request(t, http.MethodPost, "/v1/notifications/"+mine.ID+"/read", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	count, err := ts.notifSvc.UnreadCount(ctx, usr.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	// marking again stays a no-op
	rec = ts.request(t, http.MethodPost, "/v1/notifications/"+mine.ID+"/read", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// foreign notifications do not exist as far as this user can tell
	rec = ts.request(t, http.MethodPost, "/v1/notifications/"+foreign.ID+"/read", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	got, err := ts.notifSvc.Get(ctx, foreign.ID)
	require.NoError(t, err)
	assert.False(t, got.IsRead())
}

func TestDeviceRegister(t *testing.T) {
	ts := newTestServer(t)
	usr := ts.createUser(t, "awesome", user.RoleStudent)
	token := ts.token(t, usr)

	rec := ts.request(t, http.MethodPost, "/v1/devices", token, notification.NewDeviceToken{Token: "fcm-tok-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// blank token is rejected
	rec = ts.request(t, http.MethodPost, "/v1/devices", token, notification.NewDeviceToken{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnnouncementCreate(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	admin := ts.createUser(t, "principal", user.RoleAdminPrincipal)
	student := ts.createUser(t, "awesome", user.RoleStudent)

	// students may not announce
	rec := ts.request(t, http.MethodPost, "/v1/announcements", ts.token(t, student),
		AnnouncementRequest{Title: "Sports day"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// no explicit recipients: everyone gets a record
	rec = ts.request(t, http.MethodPost, "/v1/announcements", ts.token(t, admin),
		AnnouncementRequest{Title: "Sports day", Body: "Friday 8am"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp AnnouncementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Recipients)

	count, err := ts.notifSvc.UnreadCount(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
