package cmd

import (
	"testing"
)

func TestNewRootCmd(t *testing.T) {
	rootCmd := NewRootCmd()

	if rootCmd.Use != "scribe" {
		t.Errorf("expected Use to be 'scribe', got '%s'", rootCmd.Use)
	}

	// Verify subcommands are registered
	subcommands := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		subcommands[cmd.Name()] = true
	}

	expected := []string{"init", "start", "stop", "status", "process", "jobs", "logs", "cleanup", "version"}
	for _, name := range expected {
		if !subcommands[name] {
			t.Errorf("expected subcommand '%s' to be registered", name)
		}
	}

	if rootCmd.PersistentFlags().Lookup(configFlag) == nil {
		t.Error("expected persistent --config flag")
	}
}
