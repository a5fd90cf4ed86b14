// Package ratelimit provides per-key token-bucket pacing and a Gin
// middleware that answers too-fast callers with a caller-defined response.
// Time comes from an injectable clock so that pacing can be tested without
// sleeping.
package ratelimit
