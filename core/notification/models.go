package notification

import (
	"time"

	"github.com/trezcool/shule/core"
)

// Notification kinds. Business modules pick one so clients can route and
// render the event; unknown kinds are delivered as-is.
const (
	KindHomework     = "homework"
	KindExam         = "exam"
	KindPayment      = "payment"
	KindAttendance   = "attendance"
	KindMessage      = "message"
	KindAnnouncement = "announcement"
	KindLiveClass    = "live-class"
)

// Notification is the persisted record of a business event addressed to one
// user. It is created exactly once per event; history is never lost even
// when neither delivery channel reaches the user.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Kind      string     `json:"kind"`
	CreatedAt time.Time  `json:"created_at"` // UTC
	ReadAt    *time.Time `json:"read_at"`    // null until marked read, exactly one transition
}

func (n *Notification) IsRead() bool { return n.ReadAt != nil }

// NewNotification contains information needed to create a Notification.
type NewNotification struct {
	UserID string `json:"user_id" validate:"required"`
	Title  string `json:"title" validate:"required"`
	Body   string `json:"body" validate:"required"`
	Kind   string `json:"kind" validate:"required"`
}

func (nn *NewNotification) Validate() error {
	nn.Title = core.CleanString(nn.Title)
	nn.Body = core.CleanString(nn.Body)
	nn.Kind = core.CleanString(nn.Kind, true /* lower */)
	return core.Validate.Struct(nn)
}

// PushMessage derives the default push payload for the notification.
func (nn NewNotification) PushMessage() core.PushMessage {
	return core.PushMessage{
		Title: nn.Title,
		Body:  nn.Body,
		Data:  map[string]string{"kind": nn.Kind},
	}
}

// DeviceToken registers one of a user's devices with the external push
// provider. Tokens the provider reports permanently invalid are removed
// without human intervention.
type DeviceToken struct {
	UserID    string    `json:"-"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewDeviceToken contains information needed to register a DeviceToken.
type NewDeviceToken struct {
	Token string `json:"token" validate:"required"`
}

func (nt *NewDeviceToken) Validate() error {
	nt.Token = core.CleanString(nt.Token)
	return core.Validate.Struct(nt)
}
