// Package auth supplies authentication headers for the materialize client.
//
// The client never fetches or refreshes credentials itself; it only asks a
// Provider for the header to attach to each request. Providers cover the
// common token sources: a literal token, an environment variable, and a
// token file on disk.
package auth

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/annoframe/materialize-go/errors"
)

// HeaderName is the HTTP header credentials are sent in
const HeaderName = "Authorization"

// Provider supplies the authentication header for outgoing requests
type Provider interface {
	// RequestHeader returns header name and value, or an error if the
	// credential source is unavailable
	RequestHeader() (string, string, error)
}

// SetHeader asks the provider for credentials and attaches them to req.
// A nil provider is valid and attaches nothing (anonymous access).
func SetHeader(p Provider, req *http.Request) error {
	if p == nil {
		return nil
	}
	name, value, err := p.RequestHeader()
	if err != nil {
		return errors.Wrap(err, "failed to build auth header")
	}
	if value != "" {
		req.Header.Set(name, value)
	}
	return nil
}

// TokenProvider holds a literal bearer token
type TokenProvider struct {
	token string
}

// NewTokenProvider creates a provider from a literal token
func NewTokenProvider(token string) *TokenProvider {
	return &TokenProvider{token: token}
}

func (p *TokenProvider) RequestHeader() (string, string, error) {
	if p.token == "" {
		return "", "", errors.Wrap(errors.ErrUnauthorized, "empty token")
	}
	return HeaderName, "Bearer " + p.token, nil
}

// EnvProvider reads the token from an environment variable on every call
type EnvProvider struct {
	envVar string
}

// NewEnvProvider creates a provider backed by the named environment variable
func NewEnvProvider(envVar string) *EnvProvider {
	return &EnvProvider{envVar: envVar}
}

func (p *EnvProvider) RequestHeader() (string, string, error) {
	token := os.Getenv(p.envVar)
	if token == "" {
		return "", "", errors.Wrapf(errors.ErrUnauthorized, "environment variable %s not set", p.envVar)
	}
	return HeaderName, "Bearer " + token, nil
}

// FileProvider reads the token from a file. The file may contain either
// the raw token or a JSON object with a "token" field (the secrets file
// format other annotation-framework tools write).
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider backed by a token file
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) RequestHeader() (string, string, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return "", "", errors.Wrapf(errors.ErrUnauthorized, "failed to read token file %s: %v", p.path, err)
	}

	token := strings.TrimSpace(string(raw))
	if strings.HasPrefix(token, "{") {
		var secrets struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(raw, &secrets); err != nil {
			return "", "", errors.Wrapf(errors.ErrUnauthorized, "failed to parse token file %s: %v", p.path, err)
		}
		token = secrets.Token
	}

	if token == "" {
		return "", "", errors.Wrapf(errors.ErrUnauthorized, "token file %s is empty", p.path)
	}
	return HeaderName, "Bearer " + token, nil
}
