// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"encoding/json"
	"fmt"
	"io"
)

// Secret holds a credential. Every rendering path (fmt verbs, JSON, YAML,
// text, zap) prints "<redacted>"; Expose is the only way to read the value.
type Secret struct {
	value string
}

func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Expose returns the raw value. Callers own whatever happens to it next.
func (s Secret) Expose() string {
	return s.value
}

func (s Secret) IsZero() bool {
	return s.value == ""
}

func (s Secret) String() string {
	return redacted
}

func (s Secret) GoString() string {
	return `auth.Secret("` + redacted + `")`
}

func (s Secret) Format(f fmt.State, verb rune) {
	if verb == 'v' && f.Flag('#') {
		_, _ = io.WriteString(f, s.GoString())
		return
	}
	_, _ = io.WriteString(f, redacted)
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(redacted)
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// MarshalYAML satisfies both gopkg.in/yaml.v2 and gopkg.in/yaml.v3.
func (s Secret) MarshalYAML() (interface{}, error) {
	return redacted, nil
}
