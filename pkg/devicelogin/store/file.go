// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// TokenCache is the on-disk layout of the file backend, keyed by profile.
type TokenCache struct {
	Tokens map[string]StoredToken `json:"tokens"`
}

func LoadTokenCache(path string) (*TokenCache, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cache TokenCache
	if err := json.Unmarshal(content, &cache); err != nil {
		return nil, fmt.Errorf("failed to parse token cache: %w", err)
	}
	if cache.Tokens == nil {
		cache.Tokens = map[string]StoredToken{}
	}
	return &cache, nil
}

// SaveTokenCache writes the cache readable by the owner only.
func SaveTokenCache(path string, cache *TokenCache) error {
	if cache == nil {
		return errors.New("token cache is nil")
	}
	if cache.Tokens == nil {
		cache.Tokens = map[string]StoredToken{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}
	content, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return fmt.Errorf("failed to write token cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace token cache: %w", err)
	}
	return nil
}

// FileStore keeps every profile's tokens in a single JSON file.
type FileStore struct {
	Path string
}

func (s *FileStore) Load(profile string) (StoredToken, bool, error) {
	cache, err := LoadTokenCache(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StoredToken{}, false, nil
		}
		return StoredToken{}, false, err
	}
	token, ok := cache.Tokens[profile]
	return token, ok, nil
}

func (s *FileStore) Save(profile string, token StoredToken) error {
	cache, err := LoadTokenCache(s.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		cache = &TokenCache{Tokens: map[string]StoredToken{}}
	}
	cache.Tokens[profile] = token
	return SaveTokenCache(s.Path, cache)
}

func (s *FileStore) Delete(profile string) error {
	cache, err := LoadTokenCache(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if _, ok := cache.Tokens[profile]; !ok {
		return nil
	}
	delete(cache.Tokens, profile)
	return SaveTokenCache(s.Path, cache)
}

func (s *FileStore) Name() string {
	return ModeFile
}
