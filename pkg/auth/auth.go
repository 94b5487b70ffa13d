// Package auth stores the bearer token used by the cart gateway.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// TokenSource yields the current token, if any.
type TokenSource interface {
	Token() (string, bool)
}

// TokenStore is a TokenSource that can be updated at login and logout.
type TokenStore interface {
	TokenSource
	SetToken(token string) error
	ClearToken() error
}

// Memory keeps the token for the life of the process.
type Memory struct {
	mu    sync.RWMutex
	token string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Token returns the stored token.
func (m *Memory) Token() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

// SetToken replaces the stored token.
func (m *Memory) SetToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

// ClearToken forgets the stored token.
func (m *Memory) ClearToken() error {
	return m.SetToken("")
}

type fileState struct {
	Token string `yaml:"token"`
}

// File persists the token as YAML so it survives restarts.
type File struct {
	mu    sync.RWMutex
	path  string
	token string
}

// NewFile loads the store at path. A missing file yields an empty store.
func NewFile(path string) (*File, error) {
	f := &File{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var st fileState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	f.token = st.Token
	return f, nil
}

// Token returns the stored token.
func (f *File) Token() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.token, f.token != ""
}

// SetToken stores token and writes it to disk.
func (f *File) SetToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := yaml.Marshal(fileState{Token: token})
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	f.token = token
	return nil
}

// ClearToken removes the token file.
func (f *File) ClearToken() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	f.token = ""
	return nil
}
