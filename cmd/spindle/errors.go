package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// printError prints an actionable error to stderr and exits.
func printError(what string, cause error, fix string) {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Error:", what)
	fmt.Fprintln(os.Stderr, "Cause:", cause)
	fmt.Fprintln(os.Stderr, "Fix:  ", fix)
	fmt.Fprintln(os.Stderr)
	os.Exit(1)
}

// portInUseFix returns OS-specific instructions for freeing a port.
func portInUseFix(addr string) string {
	port := addr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		port = addr[idx+1:]
	}

	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf(`Port %s is in use. Find and stop the process:
       netstat -ano | findstr :%s
       taskkill /PID <pid> /F

       Or use a different port:
       spindle -listen localhost:9100`, port, port)

	case "darwin":
		return fmt.Sprintf(`Port %s is in use. Find and stop the process:
       lsof -i :%s
       kill <pid>

       Or use a different port:
       spindle -listen localhost:9100`, port, port)

	default: // linux and others
		return fmt.Sprintf(`Port %s is in use. Find and stop the process:
       ss -tlnp | grep :%s
       # or: lsof -i :%s
       kill <pid>

       Or use a different port:
       spindle -listen localhost:9100`, port, port, port)
	}
}

// dbLockedFix returns instructions for fixing database lock issues.
func dbLockedFix(dbPath string) string {
	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf(`Database is locked by another process. Check for:
       1. Another spindle instance running:
          tasklist | findstr spindle
          taskkill /IM spindle.exe /F

       2. Database viewer with file open:
          Close any SQLite browser tools

       Database: %s`, dbPath)

	default:
		return fmt.Sprintf(`Database is locked by another process. Check for:
       1. Another spindle instance running:
          pgrep -f spindle
          pkill spindle

       2. Database viewer with file open:
          lsof "%s"

       Database: %s`, dbPath, dbPath)
	}
}

// dbPathFix returns instructions for fixing database path issues.
func dbPathFix(dbPath string) string {
	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf(`Cannot open database. Check the path exists and is writable:
       if not exist "%s" mkdir "%s"

       Or specify a different path:
       set SPINDLE_DB_PATH=C:\Users\%%USERNAME%%\spindle.db`, dbPath, dbPath)

	default:
		return fmt.Sprintf(`Cannot open database. Check the path exists and is writable:
       mkdir -p "$(dirname '%s')"
       touch "%s"

       Or specify a different path:
       export SPINDLE_DB_PATH=~/spindle.db`, dbPath, dbPath)
	}
}

// journalPathFix returns instructions for fixing journal path issues.
func journalPathFix(path string) string {
	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf(`Cannot open the journal file. Check the path is writable:
       %s

       Or specify a different path:
       set SPINDLE_JOURNAL_PATH=C:\Users\%%USERNAME%%\spindles.jsonl`, path)

	default:
		return fmt.Sprintf(`Cannot open the journal file. Check the path is writable:
       mkdir -p "$(dirname '%s')"

       Or specify a different path:
       export SPINDLE_JOURNAL_PATH=~/spindles.jsonl`, path)
	}
}

// configLoadFix returns instructions for fixing config loading issues.
func configLoadFix(configPath string) string {
	if configPath == "" {
		switch runtime.GOOS {
		case "windows":
			return `Config file not found or invalid. Create one:
       spindle -listen localhost:9090

       Or check the default location:
       %APPDATA%\spindle\config.yaml`

		default:
			return `Config file not found or invalid. Create one:
       spindle -listen localhost:9090

       Or check the default location:
       ~/.config/spindle/config.yaml`
		}
	}
	return fmt.Sprintf(`Config file not found or invalid:
       %s

       Check the file exists and contains valid YAML.
       See 'spindle --help' for configuration options.`, configPath)
}

// isDBLocked checks if an error indicates a database lock.
func isDBLocked(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "cannot start a transaction within a transaction")
}

// isAddrInUse checks if an error indicates a port conflict.
func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "address already in use") ||
		strings.Contains(errStr, "Only one usage of each socket address")
}
