package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/pkg/slogx"
)

// Notifier is the delivery collaborator. Every call is best-effort from the
// core's point of view; only login-time code delivery inspects the error.
type Notifier interface {
	SendOneTimeCode(ctx context.Context, msg domain.OneTimeCode) error
	SendSecurityAlert(ctx context.Context, accountEmail string, alert domain.SecurityAlert) error
	NotifyAdmins(ctx context.Context, notice domain.AdminNotice) error
}

const notifyTimeout = 5 * time.Second

// notifyCtx detaches delivery from request cancellation and bounds it.
func notifyCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
}

func sendAlert(ctx context.Context, n Notifier, email string, alert domain.SecurityAlert) {
	if n == nil {
		return
	}
	ctx, cancel := notifyCtx(ctx)
	defer cancel()
	if err := n.SendSecurityAlert(ctx, email, alert); err != nil {
		slogx.FromContext(ctx).Warn("security alert delivery failed",
			"account_id", alert.AccountID, "action", alert.Action, "err", err)
	}
}

func notifyAdmins(ctx context.Context, n Notifier, notice domain.AdminNotice) {
	if n == nil {
		return
	}
	ctx, cancel := notifyCtx(ctx)
	defer cancel()
	if err := n.NotifyAdmins(ctx, notice); err != nil {
		slogx.FromContext(ctx).Warn("admin notification failed",
			"account_id", notice.AccountID, "action", notice.Action, "err", err)
	}
}

func sendCode(ctx context.Context, n Notifier, msg domain.OneTimeCode) error {
	if n == nil {
		return nil
	}
	ctx, cancel := notifyCtx(ctx)
	defer cancel()
	return n.SendOneTimeCode(ctx, msg)
}
