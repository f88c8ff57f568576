package main

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/shui-community/walletauth/data"
)

func TestLoadSecret(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "secret")
	if err := os.WriteFile(fname, []byte("  file-secret-that-is-long-enough-to-use\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name    string
		value   string
		fname   string
		want    string
		wantErr bool
	}{
		{name: "flag", value: "flag-secret", want: "flag-secret"},
		{name: "file is trimmed", fname: fname, want: "file-secret-that-is-long-enough-to-use"},
		{name: "neither", want: ""},
		{name: "both", value: "x", fname: fname, wantErr: true},
		{name: "missing file", fname: filepath.Join(dir, "nope"), wantErr: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := loadSecret(tt.value, tt.fname)
			if (err != nil) != tt.wantErr {
				t.Fatalf("wanted error=%v, got: %v", tt.wantErr, err)
			}
			if string(got) != tt.want {
				t.Errorf("want %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" http://a.example , ,https://b.example")
	want := []string{"http://a.example", "https://b.example"}
	if !slices.Equal(got, want) {
		t.Errorf("want %v, got %v", want, got)
	}

	if splitList("") != nil {
		t.Error("empty input should yield nil")
	}
}

func TestParseBindNetFromAddr(t *testing.T) {
	for _, tt := range []struct {
		in, network, address string
	}{
		{in: ":8923", network: "tcp", address: "localhost:8923"},
		{in: "unix:///run/walletauth.sock", network: "unix", address: "/run/walletauth.sock"},
		{in: "http://0.0.0.0:80", network: "tcp", address: "0.0.0.0:80"},
	} {
		t.Run(tt.in, func(t *testing.T) {
			network, address := parseBindNetFromAddr(tt.in)
			if network != tt.network || address != tt.address {
				t.Errorf("want %s %s, got %s %s", tt.network, tt.address, network, address)
			}
		})
	}
}

func TestExtractEmbedFS(t *testing.T) {
	dir := t.TempDir()
	if err := extractEmbedFS(data.Config, ".", dir); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "walletauth.yaml")); err != nil {
		t.Errorf("config not extracted: %v", err)
	}
}
