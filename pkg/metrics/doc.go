// Package metrics defines Prometheus metrics for device logins, covering
// metadata discovery, client registration, token polling and flow outcomes.
package metrics
