package pushsvc

import (
	"context"
	"sync"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/notification"
)

type (
	// messenger is the slice of the FCM client we use; swapped for a fake in tests.
	messenger interface {
		Send(ctx context.Context, message *messaging.Message) (string, error)
	}

	// TokenStore resolves users to their registered device tokens and
	// removes tokens the provider has declared dead.
	TokenStore interface {
		ListDeviceTokens(ctx context.Context, userIDs ...string) ([]notification.DeviceToken, error)
		DeleteDeviceTokens(ctx context.Context, tokens ...string) error
	}

	fcmService struct {
		client  messenger
		store   TokenStore
		timeout time.Duration
		workers int
		logger  core.Logger
	}

	// sendOutcome is the per-token result of one delivery attempt.
	sendOutcome struct {
		token   string
		ok      bool
		invalid bool // provider reported the token permanently invalid
	}
)

var _ core.PushService = (*fcmService)(nil)

// isInvalidToken reports whether the provider declared the token
// permanently undeliverable. mockable
var isInvalidToken = func(err error) bool {
	return messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err)
}

// NewFCMService connects to Firebase Cloud Messaging using the credentials
// file from the config. Use NewConsoleService instead when no provider is
// configured.
func NewFCMService(conf *core.Config, store TokenStore, logger core.Logger) (*fcmService, error) {
	ctx := context.Background()
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(conf.Push.CredentialsFile))
	if err != nil {
		return nil, errors.Wrap(err, "initializing firebase app")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "initializing messaging client")
	}
	return &fcmService{
		client:  client,
		store:   store,
		timeout: conf.Push.Timeout,
		workers: conf.Push.BatchWorkers,
		logger:  logger,
	}, nil
}

// SendToDevice makes a single delivery attempt. Provider errors are never
// surfaced to the caller; a permanently invalid token is deleted from the
// store before returning false (self-healing).
func (svc *fcmService) SendToDevice(ctx context.Context, token string, msg core.PushMessage) bool {
	out := svc.attempt(ctx, token, msg)
	if out.invalid {
		svc.deleteTokens(ctx, token)
	}
	return out.ok
}

// SendToDevices multicasts to all tokens through a bounded worker pool and
// aggregates the outcome once every attempt has completed. Invalid tokens
// among the failures are batch-deleted from the store. An empty token list
// yields {0, 0} without contacting the provider.
func (svc *fcmService) SendToDevices(ctx context.Context, tokens []string, msg core.PushMessage) core.MulticastResult {
	var res core.MulticastResult
	if len(tokens) == 0 {
		return res
	}

	workers := svc.workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(tokens) {
		workers = len(tokens)
	}

	jobs := make(chan string)
	outcomes := make(chan sendOutcome, len(tokens))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for token := range jobs {
				outcomes <- svc.attempt(ctx, token, msg)
			}
		}()
	}
	for _, token := range tokens {
		jobs <- token
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	var invalid []string
	for out := range outcomes {
		if out.ok {
			res.Success++
			continue
		}
		res.Failed++
		if out.invalid {
			invalid = append(invalid, out.token)
		}
	}
	if len(invalid) > 0 {
		svc.deleteTokens(ctx, invalid...)
	}
	return res
}

// SendToUser resolves the user's registered tokens and multicasts to them.
// A user with no token yields false without contacting the provider.
func (svc *fcmService) SendToUser(ctx context.Context, userID string, msg core.PushMessage) bool {
	tokens, err := svc.listTokens(ctx, userID)
	if err != nil || len(tokens) == 0 {
		return false
	}
	res := svc.SendToDevices(ctx, tokens, msg)
	return res.Success > 0
}

// SendToUsers resolves all users' tokens and multicasts in one batch.
// Users with no registered token are counted as failed, never an error.
func (svc *fcmService) SendToUsers(ctx context.Context, userIDs []string, msg core.PushMessage) core.MulticastResult {
	var res core.MulticastResult
	if len(userIDs) == 0 {
		return res
	}

	deviceTokens, err := svc.store.ListDeviceTokens(ctx, userIDs...)
	if err != nil {
		svc.logger.Error("listing device tokens", err)
		res.Failed = len(userIDs)
		return res
	}

	withTokens := make(map[string]bool, len(userIDs))
	tokens := make([]string, 0, len(deviceTokens))
	for _, dt := range deviceTokens {
		withTokens[dt.UserID] = true
		tokens = append(tokens, dt.Token)
	}

	res = svc.SendToDevices(ctx, tokens, msg)
	for _, userID := range userIDs {
		if !withTokens[userID] {
			res.Failed++
		}
	}
	return res
}

func (svc *fcmService) attempt(ctx context.Context, token string, msg core.PushMessage) sendOutcome {
	ctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	_, err := svc.client.Send(ctx, prepare(token, msg))
	if err == nil {
		return sendOutcome{token: token, ok: true}
	}
	invalid := isInvalidToken(err)
	if !invalid {
		// transient or malformed: left intact for a future retry by the caller
		svc.logger.Warn("push send failed for token "+token, err)
	}
	return sendOutcome{token: token, invalid: invalid}
}

func (svc *fcmService) listTokens(ctx context.Context, userIDs ...string) ([]string, error) {
	deviceTokens, err := svc.store.ListDeviceTokens(ctx, userIDs...)
	if err != nil {
		svc.logger.Error("listing device tokens", err)
		return nil, err
	}
	tokens := make([]string, 0, len(deviceTokens))
	for _, dt := range deviceTokens {
		tokens = append(tokens, dt.Token)
	}
	return tokens, nil
}

func (svc *fcmService) deleteTokens(ctx context.Context, tokens ...string) {
	if err := svc.store.DeleteDeviceTokens(ctx, tokens...); err != nil {
		svc.logger.Error("deleting invalid device tokens", err)
	}
}

func prepare(token string, msg core.PushMessage) *messaging.Message {
	m := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title:    msg.Title,
			Body:     msg.Body,
			ImageURL: msg.Icon,
		},
		Data: msg.Data,
	}
	if msg.ClickAction != "" {
		m.Webpush = &messaging.WebpushConfig{
			FCMOptions: &messaging.WebpushFCMOptions{Link: msg.ClickAction},
		}
	}
	return m
}
