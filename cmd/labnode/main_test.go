package main

import (
	"testing"
)

func TestGetConfigPath(t *testing.T) {
	t.Run("default when unset", func(t *testing.T) {
		t.Setenv("LABNODE_CONFIG", "")
		if got := getConfigPath(); got != defaultConfigPath {
			t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
		}
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("LABNODE_CONFIG", "/etc/labnode/config.yaml")
		if got := getConfigPath(); got != "/etc/labnode/config.yaml" {
			t.Errorf("getConfigPath() = %q, want env override", got)
		}
	})
}
