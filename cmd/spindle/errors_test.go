package main

import (
	"errors"
	"strings"
	"testing"
)

func TestPortInUseFix(t *testing.T) {
	fix := portInUseFix("localhost:9090")

	if !strings.Contains(fix, "9090") {
		t.Error("Fix should contain the port number")
	}
	if !strings.Contains(fix, "kill") && !strings.Contains(fix, "taskkill") {
		t.Error("Fix should contain kill instructions")
	}
	if !strings.Contains(fix, "9100") {
		t.Error("Fix should suggest an alternative port")
	}
}

func TestDbLockedFix(t *testing.T) {
	fix := dbLockedFix("/path/to/spindle.db")

	if !strings.Contains(fix, "nother") || !strings.Contains(fix, "spindle") {
		t.Error("Fix should mention checking for other spindle instances")
	}
	if !strings.Contains(fix, "/path/to/spindle.db") {
		t.Error("Fix should contain the database path")
	}
}

func TestDbPathFix(t *testing.T) {
	fix := dbPathFix("/path/to/spindle.db")

	if !strings.Contains(fix, "/path/to/spindle.db") {
		t.Error("Fix should contain the database path")
	}
	if !strings.Contains(fix, "SPINDLE_DB_PATH") {
		t.Error("Fix should mention the path override variable")
	}
}

func TestJournalPathFix(t *testing.T) {
	fix := journalPathFix("/path/to/spindles.jsonl")

	if !strings.Contains(fix, "SPINDLE_JOURNAL_PATH") {
		t.Error("Fix should mention the path override variable")
	}
}

func TestConfigLoadFix(t *testing.T) {
	fix := configLoadFix("")
	if !strings.Contains(fix, "config.yaml") {
		t.Error("Default fix should mention the default config location")
	}

	fix = configLoadFix("/custom/config.yaml")
	if !strings.Contains(fix, "/custom/config.yaml") {
		t.Error("Fix should contain the explicit config path")
	}
}

func TestIsDBLocked(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("database is locked"), true},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("cannot start a transaction within a transaction"), true},
		{errors.New("some other error"), false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := isDBLocked(tt.err); got != tt.want {
			errStr := "<nil>"
			if tt.err != nil {
				errStr = tt.err.Error()
			}
			t.Errorf("isDBLocked(%q) = %v, want %v", errStr, got, tt.want)
		}
	}
}

func TestIsAddrInUse(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("listen tcp 127.0.0.1:9090: bind: address already in use"), true},
		{errors.New("Only one usage of each socket address is normally permitted"), true},
		{errors.New("connection refused"), false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := isAddrInUse(tt.err); got != tt.want {
			errStr := "<nil>"
			if tt.err != nil {
				errStr = tt.err.Error()
			}
			t.Errorf("isAddrInUse(%q) = %v, want %v", errStr, got, tt.want)
		}
	}
}
