package service

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
)

// ProfileProvider loads the role-specific profile shown after login. The
// account directory owns the data; the core only reads it.
type ProfileProvider interface {
	Profile(ctx context.Context, a domain.Account) (domain.Profile, error)
}

// ProfileRegistry resolves a provider per role. It is built once at startup
// and must cover every role.
type ProfileRegistry struct {
	providers map[domain.Role]ProfileProvider
}

// NewProfileRegistry fails if any role lacks a provider.
func NewProfileRegistry(providers map[domain.Role]ProfileProvider) (*ProfileRegistry, error) {
	for _, r := range domain.Roles {
		if providers[r] == nil {
			return nil, fmt.Errorf("no profile provider for role %q", r)
		}
	}
	m := make(map[domain.Role]ProfileProvider, len(providers))
	for r, p := range providers {
		m[r] = p
	}
	return &ProfileRegistry{providers: m}, nil
}

// Profile returns the account's profile. A nil registry yields a bare
// profile carrying only the role.
func (r *ProfileRegistry) Profile(ctx context.Context, a domain.Account) (domain.Profile, error) {
	if r == nil {
		return domain.Profile{Role: a.Role}, nil
	}
	p, ok := r.providers[a.Role]
	if !ok {
		return domain.Profile{}, fmt.Errorf("no profile provider for role %q", a.Role)
	}
	return p.Profile(ctx, a)
}

// StaticProfiles serves fixed per-role limits. It stands in for the account
// directory until that service exposes profiles.
type StaticProfiles struct {
	Limits map[string]int
}

func (s StaticProfiles) Profile(_ context.Context, a domain.Account) (domain.Profile, error) {
	return domain.Profile{Role: a.Role, Limits: s.Limits}, nil
}

// DefaultProfileProviders maps each role to its built-in limits.
func DefaultProfileProviders() map[domain.Role]ProfileProvider {
	return map[domain.Role]ProfileProvider{
		domain.RoleInvestor:            StaticProfiles{Limits: map[string]int{"open_offers": 10, "saved_searches": 20}},
		domain.RolePropertyOwner:       StaticProfiles{Limits: map[string]int{"active_listings": 5}},
		domain.RoleLocalRepresentative: StaticProfiles{Limits: map[string]int{"managed_properties": 50}},
		domain.RoleAdmin:               StaticProfiles{},
	}
}
