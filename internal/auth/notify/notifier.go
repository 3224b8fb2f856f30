package notify

import (
	"context"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/service"
)

// Routing keys. Codes are keyed by channel and purpose so SMS and email
// workers can bind separately.
const (
	keyCode  = "code"
	keyAlert = "alert"
	keyAdmin = "admin"
)

// Envelope wraps every published message.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type alertPayload struct {
	Email string `json:"email"`
	domain.SecurityAlert
}

// Notifier adapts a Publisher to the delivery collaborator the auth
// services depend on.
type Notifier struct {
	Publisher Publisher
	Clock     func() time.Time
}

var _ service.Notifier = (*Notifier)(nil)

func NewNotifier(p Publisher) *Notifier {
	return &Notifier{Publisher: p}
}

func (n *Notifier) now() time.Time {
	if n.Clock != nil {
		return n.Clock().UTC()
	}
	return time.Now().UTC()
}

func (n *Notifier) publish(ctx context.Context, key, typ string, payload any) error {
	return n.Publisher.Publish(ctx, key, Envelope{Type: typ, OccurredAt: n.now(), Payload: payload})
}

// CodeRoutingKey is code.<channel>.<purpose>.
func CodeRoutingKey(msg domain.OneTimeCode) string {
	return keyCode + "." + string(msg.Channel) + "." + string(msg.Purpose)
}

func (n *Notifier) SendOneTimeCode(ctx context.Context, msg domain.OneTimeCode) error {
	return n.publish(ctx, CodeRoutingKey(msg), "one_time_code", msg)
}

func (n *Notifier) SendSecurityAlert(ctx context.Context, accountEmail string, alert domain.SecurityAlert) error {
	return n.publish(ctx, keyAlert+"."+string(alert.Action), "security_alert", alertPayload{Email: accountEmail, SecurityAlert: alert})
}

func (n *Notifier) NotifyAdmins(ctx context.Context, notice domain.AdminNotice) error {
	return n.publish(ctx, keyAdmin+"."+string(notice.Severity), "admin_notice", notice)
}
