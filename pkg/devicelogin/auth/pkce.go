// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const (
	// CodeChallengeMethodS256 is the only challenge method this client sends.
	CodeChallengeMethodS256 = "S256"

	// VerifierLength is the length of generated code verifiers. RFC 7636
	// allows 43 to 128 characters.
	VerifierLength = 96

	minVerifierLength = 43
	maxVerifierLength = 128

	unreservedAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
)

// PKCEChallenge binds one device flow attempt to this client instance.
type PKCEChallenge struct {
	verifier  Secret
	challenge string
}

// NewPKCEChallenge generates a fresh verifier from crypto/rand. A failing
// system RNG is not recoverable and panics.
func NewPKCEChallenge() PKCEChallenge {
	verifier, err := randomVerifier(rand.Reader, VerifierLength)
	if err != nil {
		panic(fmt.Sprintf("pkce: system random source failed: %v", err))
	}
	return PKCEChallenge{verifier: NewSecret(verifier), challenge: S256Challenge(verifier)}
}

// PKCEChallengeFromVerifier validates an existing verifier against RFC 7636
// and derives its challenge.
func PKCEChallengeFromVerifier(verifier string) (PKCEChallenge, error) {
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return PKCEChallenge{}, configError("pkce", fmt.Sprintf("code verifier must be %d-%d characters, got %d", minVerifierLength, maxVerifierLength, len(verifier)))
	}
	for _, r := range verifier {
		if !strings.ContainsRune(unreservedAlphabet, r) {
			return PKCEChallenge{}, configError("pkce", "code verifier contains a character outside the unreserved set")
		}
	}
	return PKCEChallenge{verifier: NewSecret(verifier), challenge: S256Challenge(verifier)}, nil
}

// S256Challenge returns BASE64URL-NOPAD(SHA256(verifier)).
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (p PKCEChallenge) Verifier() Secret {
	return p.verifier
}

func (p PKCEChallenge) Challenge() string {
	return p.challenge
}

func (p PKCEChallenge) Method() string {
	return CodeChallengeMethodS256
}

func (p PKCEChallenge) String() string {
	return fmt.Sprintf("{Verifier:%s Challenge:%s Method:%s}", redacted, p.challenge, CodeChallengeMethodS256)
}

func (p PKCEChallenge) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, p.String())
}

// randomVerifier draws length characters from the unreserved alphabet using
// rejection sampling so every character is equally likely.
func randomVerifier(src io.Reader, length int) (string, error) {
	const alphabetLen = len(unreservedAlphabet)
	limit := 256 - (256 % alphabetLen)

	out := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(out) < length {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, unreservedAlphabet[int(b)%alphabetLen])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
