//go:build !no_sqlite && cgo

package db

import "testing"

func TestCgoSQLiteDSN(t *testing.T) {
	tests := map[string]string{
		"":                           "",
		":memory:":                   ":memory:",
		"file::memory:?cache=shared": "file::memory:?cache=shared",
		"data/octavia.db":            "file:data/octavia.db?_journal_mode=WAL&_busy_timeout=5000",
		"file:octavia.db":            "file:octavia.db?_journal_mode=WAL&_busy_timeout=5000",
	}

	for in, want := range tests {
		if got := cgoSQLiteDSN(in); got != want {
			t.Errorf("cgoSQLiteDSN(%q) = %q, want %q", in, got, want)
		}
	}
}
