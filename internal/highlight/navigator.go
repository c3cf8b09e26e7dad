package highlight

import (
	"fmt"

	"github.com/canonical/docs-viewer/internal/content"
)

// Navigator walks the matches of one pass in document order, wrapping
// around at both ends. Exactly one match element carries CurrentClass
// while the list is non-empty.
type Navigator struct {
	matches []Match
	current int
	reveal  func(Match)
}

func (n *Navigator) Len() int {
	return len(n.matches)
}

// Current is the index of the current match, or -1 when there is none.
func (n *Navigator) Current() int {
	return n.current
}

// Matches returns the matches in document order.
func (n *Navigator) Matches() []Match {
	return n.matches
}

func (n *Navigator) CurrentMatch() (Match, bool) {
	if n.current < 0 || n.current >= len(n.matches) {
		return Match{}, false
	}
	return n.matches[n.current], true
}

// Keys returns the key of every match in document order.
func (n *Navigator) Keys() []string {
	keys := make([]string, len(n.matches))
	for i, m := range n.matches {
		keys[i] = m.Key
	}
	return keys
}

// Navigate moves the current match by one step in the direction of dir.
// It does nothing when there are no matches or dir is zero.
func (n *Navigator) Navigate(dir int) {
	if len(n.matches) == 0 || dir == 0 {
		return
	}
	step := 1
	if dir < 0 {
		step = -1
	}
	n.focus((n.current + step + len(n.matches)) % len(n.matches))
}

// Seek makes match i current. Out of range values wrap around.
func (n *Navigator) Seek(i int) {
	if len(n.matches) == 0 {
		return
	}
	i %= len(n.matches)
	if i < 0 {
		i += len(n.matches)
	}
	n.focus(i)
}

// Status renders the position as "current / total", 1-based.
func (n *Navigator) Status() string {
	if n.current < 0 {
		return fmt.Sprintf("0 / %d", len(n.matches))
	}
	return fmt.Sprintf("%d / %d", n.current+1, len(n.matches))
}

func (n *Navigator) set(matches []Match) {
	n.matches = matches
	n.current = -1
	if len(matches) > 0 {
		n.focus(0)
	}
}

func (n *Navigator) focus(i int) {
	if n.current >= 0 && n.current < len(n.matches) {
		content.RemoveClass(n.matches[n.current].Element, CurrentClass)
	}
	n.current = i
	m := n.matches[i]
	content.AddClass(m.Element, CurrentClass)
	if n.reveal != nil {
		n.reveal(m)
	}
}
