// Package testutil provides golden-file helpers for tests.
package testutil

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// updateGolden controls whether golden files should be updated.
// Use: go test ./... -run TestGolden -update
var updateGolden = flag.Bool("update", false, "update golden files")

// ShouldUpdate returns true if golden files should be updated.
func ShouldUpdate() bool {
	return *updateGolden
}

// GoldenPath returns testdata/<name>.golden relative to the test's package.
func GoldenPath(name string) string {
	return filepath.Join("testdata", name+".golden")
}

// CompareGolden compares got against testdata/<name>.golden, failing with a
// diff on mismatch. Line endings are normalized. With -update the golden file
// is rewritten instead.
func CompareGolden(t *testing.T, name string, got []byte) {
	t.Helper()

	got = normalizeNewlines(got)
	goldenPath := GoldenPath(name)

	if *updateGolden {
		UpdateGolden(t, name, got)
		t.Logf("Updated golden: %s", goldenPath)
		return
	}

	expected, err := os.ReadFile(goldenPath)
	if err != nil {
		if os.IsNotExist(err) {
			t.Fatalf("Golden file missing: %s\n\nGot:\n%s\n\nRun with -update to create:\n  go test ./... -run %s -update",
				goldenPath, string(got), t.Name())
		}
		t.Fatalf("Failed to read golden file: %v", err)
	}
	expected = normalizeNewlines(expected)

	if !bytes.Equal(got, expected) {
		diff := UnifiedDiff(string(expected), string(got), goldenPath)
		t.Fatalf("Golden mismatch for %s:\n%s\n\nRun with -update to refresh:\n  go test ./... -run %s -update",
			name, diff, t.Name())
	}
}

// UpdateGolden writes data to the golden file, creating testdata/ if needed.
func UpdateGolden(t *testing.T, name string, data []byte) {
	t.Helper()

	goldenPath := GoldenPath(name)
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
		t.Fatalf("Failed to create testdata directory: %v", err)
	}
	if err := os.WriteFile(goldenPath, data, 0o644); err != nil {
		t.Fatalf("Failed to write golden file: %v", err)
	}
}

func normalizeNewlines(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
}

// UnifiedDiff produces a line-by-line diff between two strings.
func UnifiedDiff(expected, got, path string) string {
	var buf bytes.Buffer

	expectedLines := strings.Split(expected, "\n")
	gotLines := strings.Split(got, "\n")

	fmt.Fprintf(&buf, "--- %s (expected)\n", path)
	fmt.Fprintf(&buf, "+++ %s (got)\n", path)

	maxLines := max(len(expectedLines), len(gotLines))

	inHunk := false
	hunkStart := 0
	var hunkLines []string

	flushHunk := func() {
		if len(hunkLines) > 0 {
			fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n", hunkStart+1, len(hunkLines), hunkStart+1, len(hunkLines))
			for _, line := range hunkLines {
				buf.WriteString(line)
				buf.WriteString("\n")
			}
			hunkLines = nil
		}
	}

	for i := 0; i < maxLines; i++ {
		var expLine, gotLine string
		if i < len(expectedLines) {
			expLine = expectedLines[i]
		}
		if i < len(gotLines) {
			gotLine = gotLines[i]
		}

		if expLine == gotLine {
			if inHunk {
				hunkLines = append(hunkLines, " "+expLine)
				if len(hunkLines) > 6 {
					flushHunk()
					inHunk = false
				}
			}
			continue
		}

		if !inHunk {
			inHunk = true
			hunkStart = i
			for j := max(0, i-3); j < i; j++ {
				hunkLines = append(hunkLines, " "+expectedLines[j])
			}
		}
		if i < len(expectedLines) {
			hunkLines = append(hunkLines, "-"+expLine)
		}
		if i < len(gotLines) {
			hunkLines = append(hunkLines, "+"+gotLine)
		}
	}

	flushHunk()

	return buf.String()
}
