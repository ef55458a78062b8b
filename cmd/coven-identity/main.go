// ABOUTME: Entry point for the coven-identity operator CLI
// ABOUTME: Runs account and credential flows against the configured store

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
)

// Version is set by goreleaser at build time.
var version = "dev"

// getConfigPath returns the path to the identity config file.
// Priority: COVEN_IDENTITY_CONFIG env var > XDG_CONFIG_HOME/coven/identity.yaml > ~/.config/coven/identity.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COVEN_IDENTITY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "identity.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "identity.yaml")
}

// getDataPath returns the path to the coven data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven")
}

func usage() {
	fmt.Println("Usage: coven-identity <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init                                         Create a config file with fresh secrets")
	fmt.Println("  migrate                                      Create or upgrade the database schema")
	fmt.Println("  signup --name N --email E --phone P          Create an account and send a signup code")
	fmt.Println("  resend --email E                             Send a new signup code")
	fmt.Println("  verify --email E --code C                    Verify a signup or password reset code")
	fmt.Println("  forgot --email E                             Send a password reset code")
	fmt.Println("  reset --email E --token T                    Set a new password with a reset token")
	fmt.Println("  login --email E [--remember]                 Log in and print tokens")
	fmt.Println("  google --id-token T                          Log in with a Google ID token")
	fmt.Println("  refresh --token T                            Mint an access token from a refresh token")
	fmt.Println("  whoami --token T                             Show the identity behind an access token")
	fmt.Println("  purge                                        Delete expired and consumed codes")
	fmt.Println("  audit [--email E] [--action A] [--limit N]   List recent account events")
	fmt.Println("  version                                      Print the version")
	fmt.Println()
	fmt.Println("Passwords are read from --password, COVEN_IDENTITY_PASSWORD, or stdin.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// A .env next to the binary may supply the ${VAR}s the config references
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(args)
	case "migrate":
		err = runMigrate(ctx, args)
	case "signup":
		err = runSignup(ctx, args)
	case "resend":
		err = runResend(ctx, args)
	case "verify":
		err = runVerify(ctx, args)
	case "forgot":
		err = runForgot(ctx, args)
	case "reset":
		err = runReset(ctx, args)
	case "login":
		err = runLogin(ctx, args)
	case "google":
		err = runGoogle(ctx, args)
	case "refresh":
		err = runRefresh(ctx, args)
	case "whoami":
		err = runWhoami(ctx, args)
	case "audit":
		err = runAudit(ctx, args)
	case "purge":
		err = runPurge(ctx, args)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorText(err))
		os.Exit(1)
	}
}
