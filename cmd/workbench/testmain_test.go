package main

import (
	"os"
	"testing"

	"github.com/joho/godotenv"
)

// TestMain loads .env when present; CI runs without one.
func TestMain(m *testing.M) {
	_ = godotenv.Load()
	os.Exit(m.Run())
}
