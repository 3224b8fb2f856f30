package http

import (
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/service"
	"github.com/aussiebroadwan/proptrust/pkg/authsdk"
)

func accountResponse(a domain.Account) authsdk.AccountResponse {
	return authsdk.AccountResponse{
		ID:               a.ID,
		Email:            a.Email,
		Phone:            a.Phone,
		Role:             string(a.Role),
		Status:           string(a.Status),
		EmailVerified:    a.EmailVerified,
		TwoFactorEnabled: a.TwoFactorEnabled,
		CreatedAt:        a.CreatedAt,
	}
}

func profileResponse(p domain.Profile) authsdk.ProfileResponse {
	return authsdk.ProfileResponse{Role: string(p.Role), Limits: p.Limits, Data: p.Data}
}

func tokenResponse(p domain.TokenPair) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    int(p.ExpiresIn / time.Second),
		SessionID:    p.SessionID,
	}
}

func loginResponse(res service.LoginResult) authsdk.LoginResponse {
	if res.TwoFactorRequired {
		exp := res.ChallengeExpiresAt
		return authsdk.LoginResponse{
			TwoFactorRequired:  true,
			ChallengeToken:     res.ChallengeToken,
			Method:             string(res.TwoFactorMethod),
			ChallengeExpiresAt: &exp,
		}
	}
	out := authsdk.LoginResponse{}
	if res.Tokens != nil {
		t := tokenResponse(*res.Tokens)
		out.Tokens = &t
	}
	acc := accountResponse(res.Account)
	out.Account = &acc
	if res.Profile != nil {
		p := profileResponse(*res.Profile)
		out.Profile = &p
	}
	return out
}

func auditEventsResponse(events []domain.AuditEvent) authsdk.AuditEventsResponse {
	out := authsdk.AuditEventsResponse{Events: make([]authsdk.AuditEventResponse, 0, len(events))}
	for _, e := range events {
		out.Events = append(out.Events, authsdk.AuditEventResponse{
			ID:          e.ID,
			Action:      string(e.Action),
			Severity:    string(e.Severity),
			Details:     e.Details,
			IP:          e.IP,
			UserAgent:   e.UserAgent,
			Country:     e.Country,
			PerformedBy: e.PerformedBy,
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}

func sessionsResponse(sessions []domain.Session) authsdk.SessionsResponse {
	out := authsdk.SessionsResponse{Sessions: make([]authsdk.SessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, authsdk.SessionResponse(s))
	}
	return out
}
