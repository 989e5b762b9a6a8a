package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/argon-desk/argon_desk/internal/broker"
	"github.com/argon-desk/argon_desk/internal/config"
	"github.com/argon-desk/argon_desk/internal/logging"
	"github.com/argon-desk/argon_desk/internal/manager"
	"github.com/argon-desk/argon_desk/internal/profile"
)

// loadConfig reads the environment and applies the global flags on top.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if dataDir != "" {
		cfg = cfg.WithDataDir(dataDir)
	}
	if mainchainURL != "" {
		cfg.MainchainURL = mainchainURL
	}
	return cfg, nil
}

// resolvePassword returns nil when no password was given, so the
// configured default applies.
func resolvePassword(flag string, in *os.File, prompt io.Writer) ([]byte, error) {
	switch flag {
	case "":
		return nil, nil
	case "-":
	default:
		return []byte(flag), nil
	}
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal: pass --password explicitly")
	}
	fmt.Fprint(prompt, "Localchain password: ")
	defer fmt.Fprintln(prompt)
	raw, err := term.ReadPassword(fd)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("password cannot be empty")
	}
	return raw, nil
}

// newManager builds and starts an account manager over the configured data
// directory. The caller must Close it.
func newManager(ctx context.Context, cfg config.Config, password []byte, stderr io.Writer) (*manager.Manager, error) {
	logger := logging.NewWriter(stderr, logLevel)
	if password == nil && cfg.LocalchainPassword != "" {
		password = []byte(cfg.LocalchainPassword)
	}
	m, err := manager.New(manager.Options{
		Chain:            cfg.ChainConfig(),
		LocalchainDir:    cfg.LocalchainDir,
		Password:         password,
		MainchainTimeout: cfg.MainchainTimeout,
		Profiles:         profile.NewService(profile.NewFileRepository(cfg.ProfilePath)),
		Escrow:           broker.HTTPEscrowSource{Timeout: cfg.BrokerTimeout},
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	if err := m.Start(ctx); err != nil {
		_ = m.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	if err := m.LoadMainchainClient(ctx, cfg.MainchainURL, cfg.MainchainTimeout); err != nil {
		_ = m.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("connect mainchain: %w", err)
	}
	return m, nil
}

// withManager runs fn against a started manager and closes it afterwards.
func withManager(cmd *cobra.Command, fn func(ctx context.Context, m *manager.Manager) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	password, err := resolvePassword(passwordFlag, os.Stdin, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	m, err := newManager(ctx, cfg, password, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer m.Close(context.WithoutCancel(ctx))
	return fn(ctx, m)
}

// readArgonFile reads an argon file from a path, or stdin for "-".
func readArgonFile(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read argon file: %w", err)
	}
	return data, nil
}

// printResult writes v as indented JSON when --json is set, otherwise calls human.
func printResult(cmd *cobra.Command, v any, human func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(w)
	return nil
}

func shorten(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 16 {
		return s
	}
	return s[:8] + "…" + s[len(s)-6:]
}
