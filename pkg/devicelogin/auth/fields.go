// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"bytes"
	"encoding/json"
	"math"
)

// jsonObject gives checked access to the members of a server response. Every
// missing or mistyped member becomes a protocol error tagged with op.
type jsonObject struct {
	op      string
	members map[string]json.RawMessage
}

func decodeObject(op string, body []byte) (*jsonObject, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, protocolError(op, "response body is not a JSON object")
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &members); err != nil {
		return nil, &Error{Kind: KindProtocol, Op: op, Description: "malformed JSON response", Err: err}
	}
	return &jsonObject{op: op, members: members}, nil
}

func (o *jsonObject) has(name string) bool {
	raw, ok := o.members[name]
	return ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (o *jsonObject) requiredString(name string) (string, error) {
	if !o.has(name) {
		return "", protocolError(o.op, "missing required field %q", name)
	}
	value, err := o.optionalString(name)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", protocolError(o.op, "field %q is empty", name)
	}
	return value, nil
}

func (o *jsonObject) optionalString(name string) (string, error) {
	if !o.has(name) {
		return "", nil
	}
	var value string
	if err := json.Unmarshal(o.members[name], &value); err != nil {
		return "", protocolError(o.op, "field %q must be a string", name)
	}
	return value, nil
}

func (o *jsonObject) requiredInt(name string) (int64, error) {
	if !o.has(name) {
		return 0, protocolError(o.op, "missing required field %q", name)
	}
	value, _, err := o.optionalInt(name)
	return value, err
}

// optionalInt accepts whole JSON numbers only; strings, fractions and values
// outside int32 seconds are protocol errors.
func (o *jsonObject) optionalInt(name string) (int64, bool, error) {
	if !o.has(name) {
		return 0, false, nil
	}
	var value float64
	if err := json.Unmarshal(o.members[name], &value); err != nil {
		return 0, false, protocolError(o.op, "field %q must be a number", name)
	}
	if value != math.Trunc(value) || value < math.MinInt32 || value > math.MaxInt32 {
		return 0, false, protocolError(o.op, "field %q must be a whole number of seconds", name)
	}
	return int64(value), true, nil
}

func (o *jsonObject) optionalStrings(name string) ([]string, error) {
	if !o.has(name) {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal(o.members[name], &values); err != nil {
		return nil, protocolError(o.op, "field %q must be an array of strings", name)
	}
	return values, nil
}

// oauthError extracts an RFC 6749 section 5.2 error object, if the body is one.
func (o *jsonObject) oauthError() (code, description string, ok bool) {
	code, err := o.optionalString("error")
	if err != nil || code == "" {
		return "", "", false
	}
	description, _ = o.optionalString("error_description")
	return code, description, true
}
