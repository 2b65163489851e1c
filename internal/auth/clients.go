package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid client credentials")

// Client is an API client allowed to exchange its secret for a token.
// SecretHash is a bcrypt hash, never the secret itself.
type Client struct {
	ID         string   `mapstructure:"id" json:"id"`
	SecretHash string   `mapstructure:"secret_hash" json:"secret_hash"`
	Scopes     []string `mapstructure:"scopes" json:"scopes"`
}

// HashSecret returns the bcrypt hash stored in a Client entry.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(h), nil
}

// WithClients registers the clients accepted by Login.
func (s *Service) WithClients(clients []Client) *Service {
	s.clients = make(map[string]Client, len(clients))
	for _, c := range clients {
		s.clients[c.ID] = c
	}
	return s
}

// Login checks a client's secret and issues a token with its scopes.
func (s *Service) Login(id, secret string) (*Token, error) {
	c, ok := s.clients[id]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.Issue(c.ID, c.Scopes)
}
