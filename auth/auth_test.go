package auth

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annoframe/materialize-go/errors"
)

func TestTokenProvider(t *testing.T) {
	name, value, err := NewTokenProvider("abc123").RequestHeader()
	require.NoError(t, err)
	assert.Equal(t, "Authorization", name)
	assert.Equal(t, "Bearer abc123", value)
}

func TestTokenProviderEmpty(t *testing.T) {
	_, _, err := NewTokenProvider("").RequestHeader()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("MATERIALIZE_TEST_TOKEN", "envtoken")

	name, value, err := NewEnvProvider("MATERIALIZE_TEST_TOKEN").RequestHeader()
	require.NoError(t, err)
	assert.Equal(t, "Authorization", name)
	assert.Equal(t, "Bearer envtoken", value)
}

func TestEnvProviderMissing(t *testing.T) {
	_, _, err := NewEnvProvider("MATERIALIZE_TEST_TOKEN_UNSET").RequestHeader()
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestFileProviderRawToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("filetoken\n"), 0o600))

	_, value, err := NewFileProvider(path).RequestHeader()
	require.NoError(t, err)
	assert.Equal(t, "Bearer filetoken", value)
}

func TestFileProviderSecretsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"token": "jsontoken"}`), 0o600))

	_, value, err := NewFileProvider(path).RequestHeader()
	require.NoError(t, err)
	assert.Equal(t, "Bearer jsontoken", value)
}

func TestFileProviderMissingFile(t *testing.T) {
	_, _, err := NewFileProvider(filepath.Join(t.TempDir(), "nope")).RequestHeader()
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestSetHeader(t *testing.T) {
	req, err := http.NewRequest("GET", "https://materialize.example.com/", nil)
	require.NoError(t, err)

	require.NoError(t, SetHeader(NewTokenProvider("abc"), req))
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
}

func TestSetHeaderNilProvider(t *testing.T) {
	req, err := http.NewRequest("GET", "https://materialize.example.com/", nil)
	require.NoError(t, err)

	require.NoError(t, SetHeader(nil, req))
	assert.Empty(t, req.Header.Get("Authorization"))
}
