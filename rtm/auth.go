package rtm

import (
	"context"
	"encoding/json"
	"fmt"
)

// AuthState is the progress of one authentication handshake.
type AuthState int

const (
	// Unauthenticated is the initial state; no frob has been requested.
	Unauthenticated AuthState = iota
	// FrobRequested means the handshake nonce was obtained.
	FrobRequested
	// AwaitingUserAuthorization means the authorization URL has been
	// built and the user must visit it out-of-band.
	AwaitingUserAuthorization
	// TokenExchanged is the success terminal: a credential exists.
	TokenExchanged
	// AuthFailed is the failure terminal; Reset starts over.
	AuthFailed
)

func (s AuthState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case FrobRequested:
		return "frob-requested"
	case AwaitingUserAuthorization:
		return "awaiting-user-authorization"
	case TokenExchanged:
		return "token-exchanged"
	case AuthFailed:
		return "failed"
	default:
		return fmt.Sprintf("AuthState(%d)", int(s))
	}
}

// AuthSession drives the three-step handshake: obtain a frob, send the
// user to the authorization URL, then exchange the frob for a
// credential. The frob is short-lived and never persisted; only the
// resulting Credential is worth keeping.
//
// A session is single-use: after TokenExchanged or AuthFailed it must be
// Reset (or discarded) before another handshake.
type AuthSession struct {
	client *Client
	perms  string

	state AuthState
	frob  string
	url   string
	cause error
}

// NewAuthSession creates a handshake against client requesting the
// given permission level (PermRead, PermWrite or PermDelete).
func NewAuthSession(client *Client, perms string) *AuthSession {
	return &AuthSession{client: client, perms: perms, state: Unauthenticated}
}

// State returns the current handshake state.
func (s *AuthSession) State() AuthState { return s.state }

// Err returns the failure cause when State is AuthFailed.
func (s *AuthSession) Err() error { return s.cause }

// URL returns the authorization URL the user must visit. Valid once the
// session reached AwaitingUserAuthorization.
func (s *AuthSession) URL() string { return s.url }

// Start requests a frob and constructs the authorization URL. Moves the
// session to AwaitingUserAuthorization; on any error the session is
// failed and must be Reset before retrying.
func (s *AuthSession) Start(ctx context.Context) error {
	if s.state != Unauthenticated {
		return s.fail(fmt.Errorf("handshake already started (state %s)", s.state))
	}

	rsp, err := s.client.call(ctx, "rtm.auth.getFrob", Params{}, false)
	if err != nil {
		return s.fail(err)
	}
	var out frobRsp
	if err := json.Unmarshal(rsp, &out); err != nil {
		return s.fail(fmt.Errorf("decoding frob: %w", err))
	}
	s.frob = out.Frob
	s.state = FrobRequested

	// URL construction is pure; no network call. Signed with the same
	// secret-sorted-pairs scheme as REST calls.
	s.url = SignedURL(s.client.authURL, s.client.cfg.APISecret, Params{
		"api_key": s.client.cfg.APIKey,
		"perms":   s.perms,
		"frob":    s.frob,
	})
	s.state = AwaitingUserAuthorization
	return nil
}

// Complete exchanges the frob for a credential after the user confirmed
// authorization out-of-band. On success the credential is attached to
// the client and returned; persistence is the caller's concern. Denial
// or an expired frob fails the session with a distinguishable AuthError
// so the caller can restart the handshake.
func (s *AuthSession) Complete(ctx context.Context) (*Credential, error) {
	if s.state != AwaitingUserAuthorization {
		return nil, s.fail(fmt.Errorf("handshake not awaiting authorization (state %s)", s.state))
	}

	rsp, err := s.client.call(ctx, "rtm.auth.getToken", Params{"frob": s.frob}, false)
	if err != nil {
		var reason string
		if se, ok := err.(*ServiceError); ok {
			// The service rejects an unauthorized or expired frob with
			// a service-level error, not a transport failure.
			reason = fmt.Sprintf("authorization not granted (code %d)", se.Code)
		} else {
			reason = "token exchange failed"
		}
		s.state = AuthFailed
		s.cause = &AuthError{Reason: reason, Err: err}
		return nil, s.cause
	}

	var out authRsp
	if err := json.Unmarshal(rsp, &out); err != nil {
		return nil, s.fail(fmt.Errorf("decoding credential: %w", err))
	}

	cred := &Credential{
		Token: out.Auth.Token,
		Perms: out.Auth.Perms,
		User:  out.Auth.User,
	}
	s.state = TokenExchanged
	s.frob = "" // consumed
	s.client.SetCredential(cred)
	return cred, nil
}

// Reset returns the session to Unauthenticated so a fresh handshake can
// begin without constructing a new session. Usable from any state.
func (s *AuthSession) Reset() {
	s.state = Unauthenticated
	s.frob = ""
	s.url = ""
	s.cause = nil
}

func (s *AuthSession) fail(err error) error {
	s.state = AuthFailed
	s.cause = &AuthError{Reason: "handshake failed", Err: err}
	return s.cause
}
