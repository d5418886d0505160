// Package credentials obtains OAuth2 bearer tokens for the document store by
// exchanging a service-account-signed JWT assertion.
package credentials

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidServiceAccount is returned when the service account material cannot be used.
var ErrInvalidServiceAccount = errors.New("invalid service account")

var validate = validator.New(validator.WithRequiredStructEnabled())

// ServiceAccount is the JSON key file of a Google service account.
type ServiceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"     validate:"required"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"    validate:"required"`
	ClientEmail  string `json:"client_email"   validate:"required,email"`
	TokenURI     string `json:"token_uri"      validate:"omitempty,url"`

	signingKey *rsa.PrivateKey
}

// ParseServiceAccount decodes and validates a service account key file.
func ParseServiceAccount(raw []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidServiceAccount, err)
	}

	if err := validate.Struct(&sa); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidServiceAccount, err)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %w", ErrInvalidServiceAccount, err)
	}

	sa.signingKey = key

	return &sa, nil
}

// SigningKey returns the parsed RSA private key.
func (sa *ServiceAccount) SigningKey() *rsa.PrivateKey {
	return sa.signingKey
}
