package main

import (
	"strings"
	"testing"
)

func TestFormatEnvVars_Unix(t *testing.T) {
	output := formatEnvVars("localhost:9090", "linux")

	if !strings.Contains(output, "export ANTHROPIC_BASE_URL=") {
		t.Error("Unix output should use 'export' syntax")
	}
	if strings.Contains(output, "$env:") {
		t.Error("Unix output should not use PowerShell syntax")
	}
}

func TestFormatEnvVars_Darwin(t *testing.T) {
	output := formatEnvVars("localhost:9090", "darwin")

	if !strings.Contains(output, "export ANTHROPIC_BASE_URL=") {
		t.Error("macOS output should use 'export' syntax")
	}
}

func TestFormatEnvVars_Windows(t *testing.T) {
	output := formatEnvVars("localhost:9090", "windows")

	if !strings.Contains(output, "$env:ANTHROPIC_BASE_URL") {
		t.Error("Windows output should use '$env:' syntax")
	}
	if strings.Contains(output, "export ") {
		t.Error("Windows output should not use 'export' syntax")
	}
}

func TestFormatEnvVars_ContainsProxyAddr(t *testing.T) {
	proxyAddr := "127.0.0.1:8080"
	output := formatEnvVars(proxyAddr, "linux")

	if !strings.Contains(output, "http://"+proxyAddr) {
		t.Errorf("Output should contain proxy address %s", proxyAddr)
	}
}

func TestFormatEnvVars_MentionsRunSubcommand(t *testing.T) {
	output := formatEnvVars("localhost:9090", "linux")

	if !strings.Contains(output, "spindle run") {
		t.Error("Output should mention the run subcommand")
	}
}
