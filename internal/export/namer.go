package export

import (
	"fmt"
	"regexp"
	"strings"
)

var unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*]+`)

// Namer turns labels into unique, filesystem-safe archive entry names.
// The second use of a base name gets "_2", the third "_3" and so on.
type Namer struct {
	counts map[string]int
	used   map[string]bool
}

// NewNamer creates a namer with no names taken
func NewNamer() *Namer {
	return &Namer{
		counts: make(map[string]int),
		used:   make(map[string]bool),
	}
}

// Name returns the entry name for a label, without extension
func (n *Namer) Name(label string, id int64) string {
	base := strings.TrimSpace(label)
	if base == "" {
		base = fmt.Sprintf("signature_%d", id)
	}
	base = unsafeFileChars.ReplaceAllString(base, "_")

	name := base
	for n.used[name] {
		n.counts[base]++
		name = fmt.Sprintf("%s_%d", base, n.counts[base])
	}
	if n.counts[base] == 0 {
		n.counts[base] = 1
	}
	n.used[name] = true
	return name
}
