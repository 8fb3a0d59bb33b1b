package main

import (
	"testing"
)

// Basic smoke test to ensure the package compiles
func TestPackageCompiles(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
}
