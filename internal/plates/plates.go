// Package plates loads and canonicalizes the watched plate list.
package plates

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Normalize canonicalizes raw list lines into the working set: trimmed,
// inner whitespace stripped, uppercased, deduplicated, sorted ascending.
// Output order is a contract; it keeps logs and state diffs reproducible.
func Normalize(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		p := strings.ToUpper(strings.Join(strings.Fields(line), ""))
		if p == "" {
			continue
		}
		seen[p] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// LoadFile reads the plate list artifact (one candidate per line) and
// returns the normalized working set. An unreadable file is the one fault
// that is fatal to a run: with no list there is nothing to check.
func LoadFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plate list: %w", err)
	}
	return Normalize(strings.Split(string(b), "\n")), nil
}
