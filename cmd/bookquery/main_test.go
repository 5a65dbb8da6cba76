package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { dropFirst = false })
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("bookquery %s failed: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestList(t *testing.T) {
	chdir(t, t.TempDir())

	out := runCLI(t, "list")
	if !strings.HasPrefix(out, "NAME") {
		t.Errorf("Expected header, got %q", out)
	}
	for _, name := range []string{"fiction_books", "books_per_decade", "index_author_year"} {
		if !strings.Contains(out, name) {
			t.Errorf("Expected %s in listing", name)
		}
	}
}

func TestSeedRunExplain(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	db := filepath.Join(dir, "books.db")

	out := runCLI(t, "--db", db, "seed", "--drop")
	if !strings.Contains(out, "Inserted 17 books into books") {
		t.Errorf("Unexpected seed output %q", out)
	}

	out = runCLI(t, "--db", db, "run", "top_author")
	var result struct {
		Kind      string                   `json:"kind"`
		Count     int                      `json:"count"`
		Documents []map[string]interface{} `json:"documents"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("Invalid JSON %q: %v", out, err)
	}
	if result.Kind != "aggregate" || result.Count != 1 || result.Documents[0]["_id"] != "Paulo Coelho" {
		t.Errorf("Unexpected result %+v", result)
	}

	out = runCLI(t, "--db", db, "explain", "find_alchemist")
	if !strings.Contains(out, "COLLSCAN") {
		t.Errorf("Expected COLLSCAN before indexing, got %q", out)
	}
	runCLI(t, "--db", db, "run", "index_title")
	out = runCLI(t, "--db", db, "explain", "find_alchemist")
	if !strings.Contains(out, "IXSCAN") {
		t.Errorf("Expected IXSCAN after indexing, got %q", out)
	}

	// Reseeding with --drop removes the index and the old documents.
	runCLI(t, "--db", db, "seed", "--drop")
	out = runCLI(t, "--db", db, "run", "fiction_books")
	if !strings.Contains(out, `"count": 7`) {
		t.Errorf("Expected 7 fiction books after reseed, got %q", out)
	}
}

func TestSeedFileFlag(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	db := filepath.Join(dir, "books.db")
	file := filepath.Join(dir, "two.yaml")
	content := "- title: Dune\n  author: Frank Herbert\n  genre: Science Fiction\n  published_year: 1965\n  price: 9.99\n  in_stock: true\n" +
		"- title: Emma\n  author: Jane Austen\n  genre: Romance\n  published_year: 1815\n  price: 8.5\n  in_stock: false\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write seed file: %v", err)
	}

	out := runCLI(t, "--db", db, "--seed-file", file, "seed", "--drop")
	if !strings.Contains(out, "Inserted 2 books into books") {
		t.Errorf("Expected seed file to be used, got %q", out)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
