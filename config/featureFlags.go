package config

import (
	"os"
	"strings"
)

// StrictBatchImmutability hardens the creation-time-only mutability window:
// warehouse batches become read-only the moment any movement references them,
// with no admin override.
//
// Set via env:
// - STRICT_BATCH_IMMUTABLE=true
func StrictBatchImmutability() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_BATCH_IMMUTABLE")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// DebugFlag reports whether a per-module debug env flag is on,
// e.g. DebugFlag("DEBUG_SALE"), DebugFlag("DEBUG_TRANSFER").
func DebugFlag(name string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(name)), "true")
}
