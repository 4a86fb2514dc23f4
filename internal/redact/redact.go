// Package redact decides which HTTP header names look secret-shaped so the
// logger never prints their values verbatim.
//
// Adapted from the teacher's secretkeys package, which loaded a caller-
// supplied list of environment variable names to scrub from step logs. A
// transload leg's headers come straight from the caller's UploadConfig, so
// besides an optional list of extra header names loaded from the
// environment (NamesFromEnv), this package recognizes the handful of header
// name shapes that conventionally carry credentials.
package redact

import (
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
)

const masked = "[REDACTED]"

// EnvKey names the environment variable a caller can set to extend the
// redaction list with header names specific to their upload endpoints,
// mirroring the teacher's BITRISE_SECRET_ENV_KEY_LIST convention.
const EnvKey = "TRANSLOAD_SECRET_HEADER_LIST"

const separator = ","

// NamesFromEnv loads the comma-separated extra header names from envRepo.
// A nil envRepo (no SessionConfig.EnvRepository configured) yields nil.
func NamesFromEnv(envRepo env.Repository) []string {
	if envRepo == nil {
		return nil
	}
	value := envRepo.Get(EnvKey)
	if value == "" {
		return nil
	}
	return strings.Split(value, separator)
}

// sensitiveSuffixes/sensitiveNames are matched case-insensitively.
var (
	sensitiveNames = map[string]bool{
		"authorization": true,
		"cookie":        true,
		"set-cookie":    true,
	}
	sensitiveSuffixes = []string{
		"-token",
		"-key",
		"-secret",
		"-signature",
		"-credential",
	}
)

// LooksSecret reports whether headerName conventionally carries a credential
// (Authorization, X-Api-Key, X-Auth-Token, ...).
func LooksSecret(headerName string) bool {
	lower := strings.ToLower(headerName)
	if sensitiveNames[lower] {
		return true
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// Headers returns a copy of headers with secret-shaped values replaced by a
// fixed mask, suitable for passing to a logger.
func Headers(headers map[string]string) map[string]string {
	return HeadersWithExtra(headers, nil)
}

// HeadersWithExtra is Headers plus a caller-supplied list of additional
// header names (typically from NamesFromEnv) to mask regardless of shape.
func HeadersWithExtra(headers map[string]string, extraNames []string) map[string]string {
	if headers == nil {
		return nil
	}
	extra := make(map[string]bool, len(extraNames))
	for _, n := range extraNames {
		extra[strings.ToLower(strings.TrimSpace(n))] = true
	}

	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if LooksSecret(k) || extra[strings.ToLower(k)] {
			out[k] = masked
		} else {
			out[k] = v
		}
	}
	return out
}
