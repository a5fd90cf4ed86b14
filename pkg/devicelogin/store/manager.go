// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

// Storage modes accepted by TokenManager.
const (
	ModeAuto     = "auto"
	ModeFile     = "file"
	ModeKeychain = "keychain"
)

// Backend persists tokens per profile.
type Backend interface {
	Load(profile string) (StoredToken, bool, error)
	Save(profile string, token StoredToken) error
	Delete(profile string) error
	Name() string
}

// TokenManager picks a backend from StorageMode. In auto mode the keychain is
// used when it is reachable and the file cache otherwise.
type TokenManager struct {
	CachePath      string
	StorageMode    string
	KeyringService string
	Logger         *zap.SugaredLogger

	backend Backend
}

func (m *TokenManager) logger() *zap.SugaredLogger {
	if m.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return m.Logger
}

// Backend resolves and memoizes the storage backend.
func (m *TokenManager) Backend() (Backend, error) {
	if m.backend != nil {
		return m.backend, nil
	}
	file := &FileStore{Path: m.CachePath}
	ring := &KeyringStore{Service: m.KeyringService}
	switch m.StorageMode {
	case ModeFile:
		m.backend = file
	case ModeKeychain:
		m.backend = ring
	case "", ModeAuto:
		if keychainAvailable(ring.service()) {
			m.backend = ring
		} else {
			m.logger().Debugw("OS keychain unavailable; using file token cache", "path", m.CachePath)
			m.backend = file
		}
	default:
		return nil, fmt.Errorf("unknown token storage mode %q (use %s, %s or %s)", m.StorageMode, ModeAuto, ModeFile, ModeKeychain)
	}
	if m.backend == file && m.CachePath == "" {
		m.backend = nil
		return nil, fmt.Errorf("token cache path is required for %s storage", ModeFile)
	}
	return m.backend, nil
}

// keychainAvailable probes with a lookup that is expected to miss.
func keychainAvailable(service string) bool {
	_, err := keyring.Get(service, "__probe__")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

func (m *TokenManager) GetToken(profile string) (StoredToken, bool, error) {
	backend, err := m.Backend()
	if err != nil {
		return StoredToken{}, false, err
	}
	return backend.Load(profile)
}

func (m *TokenManager) SaveToken(profile string, token StoredToken) error {
	backend, err := m.Backend()
	if err != nil {
		return err
	}
	if err := backend.Save(profile, token); err != nil {
		return err
	}
	m.logger().Debugw("Stored tokens", "profile", profile, "backend", backend.Name(), "token", token.String())
	return nil
}

func (m *TokenManager) DeleteToken(profile string) error {
	backend, err := m.Backend()
	if err != nil {
		return err
	}
	return backend.Delete(profile)
}
