package core

import "context"

type (
	// PushMessage is the payload sent to a device through the external
	// push provider.
	PushMessage struct {
		Title       string            `json:"title"`
		Body        string            `json:"body"`
		Icon        string            `json:"icon,omitempty"`
		ClickAction string            `json:"click_action,omitempty"`
		Data        map[string]string `json:"data,omitempty"`
	}

	// MulticastResult aggregates per-recipient outcomes of a batch send.
	// Partial failure is data, not an error: callers decide what to do
	// with stale recipients without exception-driven control flow.
	MulticastResult struct {
		Success int `json:"success"`
		Failed  int `json:"failed"`
	}

	// PushService is any service that can send push notifications to
	// registered devices. Send methods never return an error: a failed
	// attempt is reported as false / counted in MulticastResult.Failed.
	PushService interface {
		SendToDevice(ctx context.Context, token string, msg PushMessage) bool
		SendToDevices(ctx context.Context, tokens []string, msg PushMessage) MulticastResult
		SendToUser(ctx context.Context, userID string, msg PushMessage) bool
		SendToUsers(ctx context.Context, userIDs []string, msg PushMessage) MulticastResult
	}
)
