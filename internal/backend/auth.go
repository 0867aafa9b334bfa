package backend

import (
	"context"
	"net/http"
	"strings"
)

type AuthDataAccess struct {
	client *Client
}

func NewAuthDataAccess(client *Client) *AuthDataAccess {
	return &AuthDataAccess{client: client}
}

func (da *AuthDataAccess) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if da == nil || da.client == nil {
		return nil, ErrNotConfigured
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, NewValidationError("username and password are required")
	}

	resp, err := da.client.Do(ctx, http.MethodPost, "/auth/login", LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}

	var result LoginResult
	if err := decodeSuccessResponse(resp, &result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, &APIError{Op: "POST /auth/login", Status: http.StatusUnauthorized, Messages: []string{"login returned no token"}, Kind: ErrUnauthorized}
	}

	return &result, nil
}

// Logout revokes the client's token. Callers end the local session
// regardless of the result.
func (da *AuthDataAccess) Logout(ctx context.Context) error {
	if da == nil || da.client == nil {
		return ErrNotConfigured
	}

	_, err := da.client.Do(ctx, http.MethodPost, "/auth/logout", nil)
	return err
}
