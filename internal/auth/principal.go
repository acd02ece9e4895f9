package auth

import (
	"errors"
	"strings"

	"github.com/fitos/notify/pkg/crypto"
)

// ErrInvalidCredential is returned when neither a valid token nor the service key was presented.
var ErrInvalidCredential = errors.New("auth: invalid credential")

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID  string
	Role    string
	AppRole string
	Service bool
}

// Authenticator accepts either a user access token or the service-role key.
type Authenticator struct {
	jwt        *JWTService
	serviceKey string
}

// NewAuthenticator builds an Authenticator. Either dependency may be empty,
// which disables that credential type.
func NewAuthenticator(jwt *JWTService, serviceKey string) *Authenticator {
	return &Authenticator{jwt: jwt, serviceKey: strings.TrimSpace(serviceKey)}
}

// Authenticate resolves a raw credential into a Principal.
func (a *Authenticator) Authenticate(credential string) (*Principal, error) {
	credential = strings.TrimSpace(credential)
	if a == nil || credential == "" {
		return nil, ErrInvalidCredential
	}

	if a.serviceKey != "" && crypto.SecureCompare(credential, a.serviceKey) {
		return &Principal{Role: RoleServiceRole, Service: true}, nil
	}

	if a.jwt == nil {
		return nil, ErrInvalidCredential
	}
	claims, err := a.jwt.ValidateAccessToken(credential)
	if err != nil {
		return nil, errors.Join(ErrInvalidCredential, err)
	}

	return &Principal{
		UserID:  claims.Subject,
		Role:    claims.Role,
		AppRole: claims.AppRole,
		Service: claims.Role == RoleServiceRole,
	}, nil
}
