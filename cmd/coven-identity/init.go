// ABOUTME: Interactive config creation for coven-identity
// ABOUTME: Generates three independent random signing secrets

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/coven-identity/internal/config"
)

func runInit(args []string) error {
	fs := newFlagSet()
	yes := fs.Bool("yes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	ask := func(question, defaultVal string) string {
		if *yes {
			return defaultVal
		}
		return prompt(reader, question, defaultVal)
	}

	fmt.Println("coven-identity configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	outputFile := ask("Config file path", getConfigPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(ask("File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Database Configuration ---")
	dbPath := ask("SQLite database path", filepath.Join(getDataPath(), "identity.db"))

	fmt.Println("\n--- OTP Configuration ---")
	backend := ask("OTP backend (sqlite/redis)", config.BackendSQLite)
	var redisAddr string
	if backend == config.BackendRedis {
		redisAddr = ask("Redis address", "localhost:6379")
	}

	fmt.Println("\n--- Google Sign-In ---")
	clientID := ask("Google OAuth client ID (leave empty to disable)", "")

	fmt.Println("\n--- Code Delivery ---")
	mode := ask("Delivery mode (log/smtp)", config.DeliveryLog)
	var smtpHost, smtpPort, smtpUser string
	if mode == config.DeliverySMTP {
		smtpHost = ask("SMTP host", "")
		smtpPort = ask("SMTP port", "587")
		smtpUser = ask("SMTP username", "")
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := ask("Log level (debug/info/warn/error)", "info")
	logFormat := ask("Log format (text/json)", "text")

	secrets := make([]string, 3)
	for i := range secrets {
		s, err := randomSecret()
		if err != nil {
			return fmt.Errorf("generating secret: %w", err)
		}
		secrets[i] = s
	}

	var cfg strings.Builder
	cfg.WriteString("# coven-identity configuration\n")
	cfg.WriteString("# Generated by coven-identity init\n\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n\n", dbPath))

	cfg.WriteString("auth:\n")
	cfg.WriteString("  issuer: \"coven-identity\"\n")
	cfg.WriteString(fmt.Sprintf("  access_secret: %q\n", secrets[0]))
	cfg.WriteString(fmt.Sprintf("  refresh_secret: %q\n", secrets[1]))
	cfg.WriteString(fmt.Sprintf("  reset_secret: %q\n", secrets[2]))
	cfg.WriteString("  access_ttl: \"15m\"\n")
	cfg.WriteString("  refresh_ttl: \"24h\"\n")
	cfg.WriteString("  refresh_extended_ttl: \"720h\"\n")
	cfg.WriteString("  reset_ttl: \"10m\"\n\n")

	cfg.WriteString("otp:\n")
	cfg.WriteString(fmt.Sprintf("  backend: %q\n", backend))
	cfg.WriteString("  ttl: \"5m\"\n")
	cfg.WriteString("  cooldown: \"30s\"\n")
	cfg.WriteString("  window: \"1h\"\n")
	cfg.WriteString("  max_per_window: 5\n\n")

	if redisAddr != "" {
		cfg.WriteString("redis:\n")
		cfg.WriteString(fmt.Sprintf("  addr: %q\n", redisAddr))
		cfg.WriteString("  password: \"${REDIS_PASSWORD}\"\n\n")
	}

	if clientID != "" {
		cfg.WriteString("google:\n")
		cfg.WriteString(fmt.Sprintf("  client_id: %q\n\n", clientID))
	}

	cfg.WriteString("delivery:\n")
	cfg.WriteString(fmt.Sprintf("  mode: %q\n", mode))
	if mode == config.DeliverySMTP {
		cfg.WriteString("  smtp:\n")
		cfg.WriteString(fmt.Sprintf("    host: %q\n", smtpHost))
		cfg.WriteString(fmt.Sprintf("    port: %q\n", smtpPort))
		cfg.WriteString(fmt.Sprintf("    username: %q\n", smtpUser))
		cfg.WriteString("    password: \"${SMTP_PASSWORD}\"\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// Secrets inside: owner-only
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Println()
	green.Printf("  ✓ Config written to %s\n", outputFile)
	fmt.Println()
	yellow.Println("  Next:")
	fmt.Println("    coven-identity migrate")
	fmt.Println("    coven-identity signup --name NAME --email EMAIL --phone PHONE")
	fmt.Println()
	return nil
}

// randomSecret returns 32 random bytes, base64 encoded (44 characters).
func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
