// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

// DefaultPromptTemplate is shown while the device code is being polled.
const DefaultPromptTemplate = `To sign in, open {{ .VerificationURI }} in a browser and enter the code:

    {{ .UserCode }}
{{- if .VerificationURIComplete }}

Or open this link, which already contains the code:
    {{ .VerificationURIComplete }}
{{- end }}

The code expires in {{ .ExpiresIn }} (at {{ .ExpiresAt | date "15:04:05 MST" }}). Waiting for authorization...
`

// PromptData is what prompt templates can reference. It never carries the
// device code.
type PromptData struct {
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               time.Duration
	ExpiresAt               time.Time
	Interval                time.Duration
	Issuer                  string
	Profile                 string
}

// ParsePrompt compiles tmpl with the sprig function map. An empty tmpl
// selects DefaultPromptTemplate.
func ParsePrompt(tmpl string) (*template.Template, error) {
	if tmpl == "" {
		tmpl = DefaultPromptTemplate
	}
	t, err := template.New("prompt").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("invalid prompt template: %w", err)
	}
	return t, nil
}

// WritePrompt renders the device code prompt to w.
func WritePrompt(w io.Writer, t *template.Template, data PromptData) error {
	if err := t.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render prompt: %w", err)
	}
	return nil
}
