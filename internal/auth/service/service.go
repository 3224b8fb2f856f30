package service

import (
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/store"
	"github.com/aussiebroadwan/proptrust/pkg/jwtx"
	"github.com/aussiebroadwan/proptrust/pkg/metricsx"
)

// Clock returns the current time. A nil Clock is the wall clock.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// Options configures the service graph built by New.
type Options struct {
	Store      store.Store
	Blacklist  store.Blacklist
	KeyManager *jwtx.KeyManager
	Notifier   Notifier
	Profiles   *ProfileRegistry
	Metrics    *metricsx.Metrics

	Issuer   string
	Audience []string

	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
	BlacklistGrace   time.Duration
	SuspiciousWindow time.Duration

	Clock Clock
}

// Services is the wired set of components.
type Services struct {
	Auth        *AuthService
	Admin       *AdminService
	TwoFactor   *TwoFactor
	Sessions    *Sessions
	Audit       *AuditTrail
	Ledger      *Ledger
	Lockout     *Lockout
	Credentials *Credentials
}

// New wires every component over one store and blacklist.
func New(o Options) *Services {
	audit := &AuditTrail{Store: o.Store, Metrics: o.Metrics, Clock: o.Clock}
	ledger := &Ledger{Store: o.Store, Blacklist: o.Blacklist, Metrics: o.Metrics, Grace: o.BlacklistGrace, Clock: o.Clock}
	creds := &Credentials{Store: o.Store, Clock: o.Clock}
	lockout := &Lockout{
		Store:     o.Store,
		Audit:     audit,
		Notifier:  o.Notifier,
		Metrics:   o.Metrics,
		Threshold: o.LockoutThreshold,
		Duration:  o.LockoutDuration,
		Clock:     o.Clock,
	}
	sessions := &Sessions{Store: o.Store, Ledger: ledger, Audit: audit, Metrics: o.Metrics, Clock: o.Clock}
	twoFactor := &TwoFactor{
		Store:    o.Store,
		Ledger:   ledger,
		Sessions: sessions,
		Audit:    audit,
		Notifier: o.Notifier,
		Metrics:  o.Metrics,
		Issuer:   o.Issuer,
		Clock:    o.Clock,
	}

	auth := &AuthService{
		Store:            o.Store,
		KeyManager:       o.KeyManager,
		Credentials:      creds,
		Lockout:          lockout,
		Ledger:           ledger,
		TwoFactor:        twoFactor,
		Sessions:         sessions,
		Audit:            audit,
		Notifier:         o.Notifier,
		Profiles:         o.Profiles,
		Metrics:          o.Metrics,
		Issuer:           o.Issuer,
		Audience:         o.Audience,
		AccessTTL:        o.AccessTTL,
		RefreshTTL:       o.RefreshTTL,
		SuspiciousWindow: o.SuspiciousWindow,
		Clock:            o.Clock,
	}
	admin := &AdminService{
		Store:       o.Store,
		Credentials: creds,
		Sessions:    sessions,
		Audit:       audit,
		Notifier:    o.Notifier,
		Clock:       o.Clock,
	}

	return &Services{
		Auth:        auth,
		Admin:       admin,
		TwoFactor:   twoFactor,
		Sessions:    sessions,
		Audit:       audit,
		Ledger:      ledger,
		Lockout:     lockout,
		Credentials: creds,
	}
}
