package main

import (
	"fmt"
	"strings"
)

// formatEnvVars returns copy-paste ready environment variables for the given OS.
// goos should be runtime.GOOS (e.g., "linux", "darwin", "windows").
func formatEnvVars(proxyAddr, goos string) string {
	var sb strings.Builder

	sb.WriteString("  Environment variables (copy-paste):\n\n")

	if goos == "windows" {
		// PowerShell syntax
		sb.WriteString("  # Anthropic SDKs and Claude CLI\n")
		fmt.Fprintf(&sb, "  $env:ANTHROPIC_BASE_URL = \"http://%s\"\n", proxyAddr)
	} else {
		// Unix syntax (Linux, macOS, etc.)
		sb.WriteString("  # Anthropic SDKs and Claude CLI\n")
		fmt.Fprintf(&sb, "  export ANTHROPIC_BASE_URL=http://%s\n", proxyAddr)
	}

	sb.WriteString("\n")
	sb.WriteString("  Or wrap a command directly:\n\n")
	fmt.Fprintf(&sb, "  spindle run claude\n")
	sb.WriteString("\n")
	return sb.String()
}
