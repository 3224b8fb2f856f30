package domain

import "time"

type TwoFactorMethod string

const (
	MethodEmail         TwoFactorMethod = "email"
	MethodSMS           TwoFactorMethod = "sms"
	MethodAuthenticator TwoFactorMethod = "authenticator"
)

// ParseTwoFactorMethod validates a method string.
func ParseTwoFactorMethod(s string) (TwoFactorMethod, bool) {
	switch TwoFactorMethod(s) {
	case MethodEmail, MethodSMS, MethodAuthenticator:
		return TwoFactorMethod(s), true
	}
	return "", false
}

// UsesDeliveredCodes reports whether codes are sent out-of-band per attempt.
func (m TwoFactorMethod) UsesDeliveredCodes() bool {
	return m == MethodEmail || m == MethodSMS
}

// TwoFactorConfig holds the single active second factor for an account.
// Secret and TempSecret are mutually exclusive: TempSecret is set while an
// authenticator enrolment awaits confirmation.
type TwoFactorConfig struct {
	AccountID      string
	Method         TwoFactorMethod
	Secret         string
	TempSecret     string
	IsEnabled      bool
	FailedAttempts int
	LockedUntil    *time.Time
	// ConfirmedStep is the TOTP time step whose code confirmed enrolment.
	// That code is not accepted again.
	ConfirmedStep int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (c *TwoFactorConfig) IsLocked(now time.Time) bool {
	return c.LockedUntil != nil && now.Before(*c.LockedUntil)
}

// SetupPending is true between BeginSetup and a successful confirmation.
func (c *TwoFactorConfig) SetupPending() bool {
	return !c.IsEnabled && c.Method != ""
}

// TwoFactorSetup is returned by BeginSetup. For authenticator enrolment it
// carries the shared secret and the otpauth:// provisioning URL.
type TwoFactorSetup struct {
	Method          TwoFactorMethod `json:"method"`
	Secret          string          `json:"secret,omitempty"`
	ProvisioningURL string          `json:"provisioning_url,omitempty"`
	Destination     string          `json:"destination,omitempty"` // masked email or phone
}

// DeliveryChannel is how a one-time code reaches the account holder.
type DeliveryChannel string

const (
	ChannelEmail DeliveryChannel = "email"
	ChannelSMS   DeliveryChannel = "sms"
)
