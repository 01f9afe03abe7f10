package pushsvc

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/trezcool/shule/core"
)

// consoleService stands in when no external push provider is configured.
// Every send reports full success and the store is never touched, keeping
// dependent business logic operable (and testable) without the provider.
type consoleService struct {
	mu            sync.Mutex
	sent          []SentPush
	disableOutput bool
}

// SentPush records one send call for inspection.
type SentPush struct {
	Tokens  []string
	UserIDs []string
	Message core.PushMessage
}

var _ core.PushService = (*consoleService)(nil)

func NewConsoleService() core.PushService {
	return &consoleService{}
}

func (svc *consoleService) SendToDevice(_ context.Context, token string, msg core.PushMessage) bool {
	svc.record(SentPush{Tokens: []string{token}, Message: msg})
	return true
}

func (svc *consoleService) SendToDevices(_ context.Context, tokens []string, msg core.PushMessage) core.MulticastResult {
	if len(tokens) == 0 {
		return core.MulticastResult{}
	}
	svc.record(SentPush{Tokens: tokens, Message: msg})
	return core.MulticastResult{Success: len(tokens)}
}

func (svc *consoleService) SendToUser(_ context.Context, userID string, msg core.PushMessage) bool {
	svc.record(SentPush{UserIDs: []string{userID}, Message: msg})
	return true
}

func (svc *consoleService) SendToUsers(_ context.Context, userIDs []string, msg core.PushMessage) core.MulticastResult {
	if len(userIDs) == 0 {
		return core.MulticastResult{}
	}
	svc.record(SentPush{UserIDs: userIDs, Message: msg})
	return core.MulticastResult{Success: len(userIDs)}
}

func (svc *consoleService) record(sp SentPush) {
	svc.mu.Lock()
	svc.sent = append(svc.sent, sp)
	svc.mu.Unlock()

	if !svc.disableOutput {
		to := sp.Tokens
		if len(to) == 0 {
			to = sp.UserIDs
		}
		log.Println(fmt.Sprintf("PUSH to [%s]: %s - %s", strings.Join(to, ", "), sp.Message.Title, sp.Message.Body))
	}
}

// consoleServiceMock runs silently and exposes the recorded sends.
type consoleServiceMock struct {
	consoleService
}

func NewConsoleServiceMock() *consoleServiceMock {
	return &consoleServiceMock{consoleService: consoleService{disableOutput: true}}
}

func (svc *consoleServiceMock) Sent() []SentPush {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]SentPush(nil), svc.sent...)
}
