// ABOUTME: Tests for CLI flag parsing and config path resolution
// ABOUTME: Covers both flag syntaxes, boolean switches and error cases

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-identity/internal/auth"
)

func TestFlagSet_Parse(t *testing.T) {
	fs := newFlagSet()
	email := fs.String("email")
	code := fs.String("code")
	remember := fs.Bool("remember")

	require.NoError(t, fs.Parse([]string{"--email", "a@x.com", "--code=123456", "--remember"}))
	assert.Equal(t, "a@x.com", *email)
	assert.Equal(t, "123456", *code)
	assert.True(t, *remember)
	assert.NoError(t, fs.required("email", "code"))
}

func TestFlagSet_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown flag", []string{"--bogus", "x"}, "unknown flag"},
		{"missing value", []string{"--email"}, "--email requires a value"},
		{"positional", []string{"a@x.com"}, "unexpected argument"},
		{"bad bool", []string{"--remember=maybe"}, "expects a boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFlagSet()
			fs.String("email")
			fs.Bool("remember")
			err := fs.Parse(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFlagSet_Required(t *testing.T) {
	fs := newFlagSet()
	fs.String("email")
	require.NoError(t, fs.Parse([]string{"--email", "  "}))
	assert.EqualError(t, fs.required("email"), "--email flag is required")
}

func TestReadPassword(t *testing.T) {
	pw, err := readPassword("from-flag")
	require.NoError(t, err)
	assert.Equal(t, "from-flag", pw)

	t.Setenv("COVEN_IDENTITY_PASSWORD", "from-env")
	pw, err = readPassword("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("COVEN_IDENTITY_CONFIG", "/etc/coven/identity.yaml")
	assert.Equal(t, "/etc/coven/identity.yaml", getConfigPath())

	t.Setenv("COVEN_IDENTITY_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "coven", "identity.yaml"), getConfigPath())
}

func TestErrorText(t *testing.T) {
	err := &auth.Error{Kind: auth.KindConflict, Message: "email already registered"}
	assert.Equal(t, "email already registered (conflict)", errorText(err))
	assert.Equal(t, "boom", errorText(errors.New("boom")))
}

func TestRandomSecret(t *testing.T) {
	a, err := randomSecret()
	require.NoError(t, err)
	b, err := randomSecret()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(a), 32)
	assert.NotEqual(t, a, b)
}

func TestColorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&colorHandler{mu: &sync.Mutex{}, out: &buf, level: slog.LevelInfo})

	logger.With("component", "auth").Info("login", "user_id", "u1")
	logger.Debug("hidden")
	logger.WithGroup("req").Info("grouped", "id", 7)

	out := buf.String()
	assert.Contains(t, out, "login")
	assert.Contains(t, out, "component=")
	assert.Contains(t, out, "u1")
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "req.id=")
	assert.True(t, handlerEnabled(logger, slog.LevelWarn))
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func handlerEnabled(l *slog.Logger, level slog.Level) bool {
	return l.Handler().Enabled(context.Background(), level)
}
