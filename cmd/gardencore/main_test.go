package main

import (
	"testing"
)

func TestGetConfigPath(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("GARDENCORE_CONFIG", "")
		if got := getConfigPath(); got != defaultConfigPath {
			t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
		}
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("GARDENCORE_CONFIG", "/etc/gardencore/config.yaml")
		if got := getConfigPath(); got != "/etc/gardencore/config.yaml" {
			t.Errorf("getConfigPath() = %q, want env value", got)
		}
	})
}
