/*
Package authsdk provides a client SDK for the PropTrust authentication service,
plus the request, response and error types the service itself writes.

# SDKClient vs Session

  - SDKClient: unauthenticated operations (register, login, password reset, health)
  - Session: operations on behalf of a signed-in account, with automatic token refresh

Example:

	client := authsdk.NewSDKClient("https://auth.example.com")

	session, err := client.Login(ctx, email, password)
	var tfa *authsdk.TwoFactorRequiredError
	if errors.As(err, &tfa) {
		// A code was sent (email/SMS) or must be read from the authenticator app.
		session, err = client.CompleteLogin(ctx, tfa.ChallengeToken, code)
	}

	me, err := session.Me(ctx)

# Refresh Tokens

Refresh tokens are single use. Each refresh returns a new refresh token and
the old one stops working, so a Session keeps the latest pair internally.
Persist RefreshToken() after any call if the session must be resumed later
with NewSessionFromTokens.

# Errors

Non-2xx responses are returned as *APIError. Compare with errors.Is against
the exported sentinels, which match on Code only:

	if errors.Is(err, authsdk.ErrAccountLocked) {
		var apiErr *authsdk.APIError
		errors.As(err, &apiErr)
		wait := apiErr.RetryAfter
	}
*/
package authsdk
