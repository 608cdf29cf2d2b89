package main

import "testing"

// TestCoverageGaps_IntentionallyUntested documents why cmd/service has no unit tests.
func TestCoverageGaps_IntentionallyUntested(t *testing.T) {
	t.Skip("main only wires config, reference data, cache and router; internal/http NewRouter tests exercise the same chain end to end")
}
