package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/argon-desk/argon_desk/internal/ledger"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MAINCHAIN_URL", "")
	t.Setenv("REDIS_URL", "")
	jsonOutput, outFile, fromAddress, toAddress = false, "", "", ""

	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

type addressEntry struct {
	Path    string `json:"path"`
	Address string `json:"address"`
}

func addresses(t *testing.T, dir string) []addressEntry {
	t.Helper()
	out, err := execute(t, "--data-dir", dir, "--json", "address")
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	var entries []addressEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	return entries
}

func TestAddressCreatesPrimaryLocalchain(t *testing.T) {
	dir := t.TempDir()
	entries := addresses(t, dir)
	if len(entries) != 1 {
		t.Fatalf("expected one localchain, got %+v", entries)
	}
	if entries[0].Path != filepath.Join(dir, "localchain", "primary.db") || entries[0].Address == "" {
		t.Fatalf("unexpected primary localchain %+v", entries[0])
	}

	again := addresses(t, dir)
	if len(again) != 1 || again[0].Address != entries[0].Address {
		t.Fatalf("address should survive a restart, got %+v", again)
	}
}

func TestAccountsCreateAppendsLocalchain(t *testing.T) {
	dir := t.TempDir()
	if _, err := execute(t, "--data-dir", dir, "accounts", "create", "savings"); err != nil {
		t.Fatalf("create: %v", err)
	}
	entries := addresses(t, dir)
	if len(entries) != 2 {
		t.Fatalf("expected two localchains, got %+v", entries)
	}
	if entries[1].Path != filepath.Join(dir, "localchain", "savings.db") {
		t.Fatalf("created localchain should load second, got %+v", entries)
	}
}

func TestSendWithoutFundsFails(t *testing.T) {
	_, err := execute(t, "--data-dir", t.TempDir(), "send", "1.5")
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestSendRejectsBadAmount(t *testing.T) {
	if _, err := execute(t, "--data-dir", t.TempDir(), "send", "1.2345"); err == nil {
		t.Fatal("expected an error for more than three decimals")
	}
}

func TestRequestWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "request.argon")
	if _, err := execute(t, "--data-dir", dir, "request", "2", "--out", path); err != nil {
		t.Fatalf("request: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read request file: %v", err)
	}
	if !strings.Contains(string(data), "2000") {
		t.Fatalf("request file should carry 2000 milligons: %s", data)
	}
}

func TestResolvePassword(t *testing.T) {
	if pw, err := resolvePassword("", os.Stdin, io.Discard); err != nil || pw != nil {
		t.Fatalf("empty flag: got %v, %v", pw, err)
	}
	if pw, err := resolvePassword("hunter2", os.Stdin, io.Discard); err != nil || string(pw) != "hunter2" {
		t.Fatalf("literal flag: got %q, %v", pw, err)
	}
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer f.Close()
	if _, err := resolvePassword("-", f, io.Discard); err == nil {
		t.Fatal("prompting should fail when stdin is not a terminal")
	}
}
