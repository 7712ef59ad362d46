package query

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// Mark delimits matched terms inside highlight fragments.
	Mark = "**"

	fragmentContext = 40
)

var highlightColumns = map[string]int{
	"subject":    0,
	"body":       1,
	"sender":     2,
	"recipients": 3,
}

// Highlights returns up to top fragments of the given field with matched
// terms wrapped in Mark, best fragments first. A document that does not
// match the query, or a blank query, yields no fragments.
func (e *Engine) Highlights(docKey, q, field string, top int) ([]string, error) {
	col, ok := highlightColumns[field]
	if !ok {
		return nil, fmt.Errorf("field %q cannot be highlighted", field)
	}
	root, err := Parse(q)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}
	compiled, err := compile(root, q, nil)
	if err != nil {
		return nil, err
	}
	if len(compiled.ftsExprs) == 0 {
		return nil, nil
	}
	if top <= 0 {
		top = 3
	}

	var rowid int64
	err = e.store.DB().QueryRow("SELECT id FROM documents WHERE doc_key = ?", docKey).Scan(&rowid)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotInIndex, docKey)
	}

	// Each positive expression is highlighted separately so that terms from
	// OR branches the document does not match do not suppress the others.
	var marked []string
	stmt := fmt.Sprintf(
		"SELECT highlight(documents_fts, %d, ?, ?) FROM documents_fts WHERE rowid = ? AND documents_fts MATCH ?", col)
	for _, expr := range compiled.ftsExprs {
		var text string
		err := e.store.DB().QueryRow(stmt, Mark, Mark, rowid, expr).Scan(&text)
		if err != nil {
			continue
		}
		if strings.Contains(text, Mark) {
			marked = append(marked, text)
		}
	}
	if len(marked) == 0 {
		return nil, nil
	}
	return bestFragments(marked, top), nil
}

type fragment struct {
	text  string
	marks int
}

// bestFragments extracts windows of context around marked regions, merging
// overlaps within each text and keeping the fragments with the most matches.
func bestFragments(marked []string, top int) []string {
	var fragments []fragment
	for _, text := range marked {
		fragments = append(fragments, splitFragments(text)...)
	}
	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].marks > fragments[j].marks
	})
	if len(fragments) > top {
		fragments = fragments[:top]
	}
	out := make([]string, len(fragments))
	for i, f := range fragments {
		out[i] = f.text
	}
	return out
}

func splitFragments(text string) []fragment {
	type span struct{ start, end int }
	var spans []span
	var marks []int

	rest := text
	base := 0
	for {
		open := strings.Index(rest, Mark)
		if open < 0 {
			break
		}
		closing := strings.Index(rest[open+len(Mark):], Mark)
		if closing < 0 {
			break
		}
		markStart := base + open
		markEnd := base + open + len(Mark) + closing + len(Mark)
		start := markStart - fragmentContext
		if start < 0 {
			start = 0
		}
		for start > 0 && text[start]&0xC0 == 0x80 {
			start--
		}
		end := markEnd + fragmentContext
		if end > len(text) {
			end = len(text)
		}
		for end < len(text) && text[end]&0xC0 == 0x80 {
			end++
		}
		if n := len(spans); n > 0 && start <= spans[n-1].end {
			spans[n-1].end = end
			marks[n-1]++
		} else {
			spans = append(spans, span{start, end})
			marks = append(marks, 1)
		}
		advance := open + len(Mark) + closing + len(Mark)
		rest = rest[advance:]
		base += advance
	}

	fragments := make([]fragment, len(spans))
	for i, sp := range spans {
		frag := strings.TrimSpace(text[sp.start:sp.end])
		if sp.start > 0 {
			frag = "…" + frag
		}
		if sp.end < len(text) {
			frag += "…"
		}
		fragments[i] = fragment{text: frag, marks: marks[i]}
	}
	return fragments
}
