// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const DefaultKeyringService = "devicelogin"

// KeyringStore keeps one JSON entry per profile in the OS keychain.
type KeyringStore struct {
	Service string
}

func (s *KeyringStore) service() string {
	if s.Service == "" {
		return DefaultKeyringService
	}
	return s.Service
}

func (s *KeyringStore) Load(profile string) (StoredToken, bool, error) {
	secret, err := keyring.Get(s.service(), profile)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return StoredToken{}, false, nil
		}
		return StoredToken{}, false, fmt.Errorf("failed to read keyring entry: %w", err)
	}
	var token StoredToken
	if err := json.Unmarshal([]byte(secret), &token); err != nil {
		return StoredToken{}, false, fmt.Errorf("failed to parse keyring entry: %w", err)
	}
	return token, true, nil
}

func (s *KeyringStore) Save(profile string, token StoredToken) error {
	content, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := keyring.Set(s.service(), profile, string(content)); err != nil {
		return fmt.Errorf("failed to write keyring entry: %w", err)
	}
	return nil
}

func (s *KeyringStore) Delete(profile string) error {
	if err := keyring.Delete(s.service(), profile); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete keyring entry: %w", err)
	}
	return nil
}

func (s *KeyringStore) Name() string {
	return ModeKeychain
}
