package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/dhcgn/mbox-search/decoder"
)

// DefaultFields are searched when a term carries no field prefix.
var DefaultFields = []string{"subject", "body", "sender", "recipients"}

// ftsColumns maps field names (and their aliases) to FTS5 columns.
var ftsColumns = map[string]string{
	"subject":    "subject",
	"body":       "body",
	"sender":     "sender",
	"from":       "sender",
	"recipients": "recipients",
	"to":         "recipients",
}

// exactColumns maps field names to plain document columns matched verbatim.
var exactColumns = map[string]string{
	"file":       "mbox_file",
	"mbox":       "mbox_file",
	"mbox_file":  "mbox_file",
	"key":        "doc_key",
	"doc_key":    "doc_key",
	"id":         "message_id",
	"message_id": "message_id",
}

// compiled is the SQL form of a query: a WHERE condition over the documents
// table (aliased d) plus the positive full-text expressions used for ranking
// and highlighting.
type compiled struct {
	cond     string
	args     []any
	ftsExprs []string
}

// compiler walks the tree top down. negated tracks whether the current
// subtree sits under an odd number of NOTs, which excludes its full-text
// terms from ranking.
type compiler struct {
	src      string
	fields   []string
	ftsExprs []string
}

func compile(root node, q string, fields []string) (*compiled, error) {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	cols := make([]string, len(fields))
	for i, f := range fields {
		col, ok := ftsColumns[f]
		if !ok {
			return nil, fmt.Errorf("unknown search field %q", f)
		}
		cols[i] = col
	}
	c := &compiler{src: q, fields: cols}
	cond, args, err := c.walk(root, false)
	if err != nil {
		return nil, err
	}
	return &compiled{cond: cond, args: args, ftsExprs: c.ftsExprs}, nil
}

func (c *compiler) walk(n node, negated bool) (string, []any, error) {
	switch t := n.(type) {
	case andNode:
		return c.binary(t.left, t.right, "AND", negated)
	case orNode:
		return c.binary(t.left, t.right, "OR", negated)
	case notNode:
		cond, args, err := c.walk(t.child, !negated)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + cond + ")", args, nil
	case termNode:
		return c.term(t, negated)
	case rangeNode:
		return c.dateRange(t)
	default:
		return "", nil, fmt.Errorf("unsupported query node %T", n)
	}
}

func (c *compiler) binary(left, right node, op string, negated bool) (string, []any, error) {
	lc, la, err := c.walk(left, negated)
	if err != nil {
		return "", nil, err
	}
	rc, ra, err := c.walk(right, negated)
	if err != nil {
		return "", nil, err
	}
	return "(" + lc + " " + op + " " + rc + ")", append(la, ra...), nil
}

func (c *compiler) term(t termNode, negated bool) (string, []any, error) {
	if t.field == "" {
		return c.ftsMatch(c.fields, t, negated)
	}
	if col, ok := ftsColumns[t.field]; ok {
		return c.ftsMatch([]string{col}, t, negated)
	}
	if col, ok := exactColumns[t.field]; ok {
		return exactMatch("d."+col, t)
	}
	switch t.field {
	case "label", "labels":
		return labelMatch(t)
	case "date":
		return "", nil, c.errorf(t.pos, "date takes a range, use date:[start TO end]")
	}
	return "", nil, c.errorf(t.pos, "unknown field %q", t.field)
}

// ftsMatch builds an FTS5 match expression restricted to the given columns.
func (c *compiler) ftsMatch(cols []string, t termNode, negated bool) (string, []any, error) {
	if t.value == "" {
		return "", nil, c.errorf(t.pos, "empty search term")
	}
	expr := "{" + strings.Join(cols, " ") + "} : " + ftsQuote(t.value, t.prefix)
	if !negated {
		c.ftsExprs = append(c.ftsExprs, expr)
	}
	cond := "d.id IN (SELECT rowid FROM documents_fts WHERE documents_fts MATCH ?)"
	return cond, []any{expr}, nil
}

func (c *compiler) dateRange(t rangeNode) (string, []any, error) {
	if t.field != "date" {
		return "", nil, c.errorf(t.pos, "field %q does not support ranges", t.field)
	}
	if t.start == "" && t.end == "" {
		return "", nil, c.errorf(t.pos, "date range needs at least one bound")
	}
	conds := []string{"d.date_unix IS NOT NULL"}
	var args []any
	if t.start != "" {
		from, _, err := parseBound(t.start)
		if err != nil {
			return "", nil, c.errorf(t.pos, "bad range start %q", t.start)
		}
		conds = append(conds, "d.date_unix >= ?")
		args = append(args, from.Unix())
	}
	if t.end != "" {
		_, until, err := parseBound(t.end)
		if err != nil {
			return "", nil, c.errorf(t.pos, "bad range end %q", t.end)
		}
		conds = append(conds, "d.date_unix < ?")
		args = append(args, until.Unix())
	}
	return "(" + strings.Join(conds, " AND ") + ")", args, nil
}

func (c *compiler) errorf(pos int, format string, args ...any) error {
	return &SyntaxError{Query: c.src, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// parseBound parses a range endpoint and returns the start of the period it
// names together with the start of the following period, so "2021-06" covers
// the whole month and "2021-06-30" the whole day.
func parseBound(s string) (time.Time, time.Time, error) {
	switch len(s) {
	case 4:
		t, err := time.Parse("2006", s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return t, t.AddDate(1, 0, 0), nil
	case 7:
		t, err := time.Parse("2006-01", s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return t, t.AddDate(0, 1, 0), nil
	case 10:
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return t, t.AddDate(0, 0, 1), nil
	}
	if t := decoder.ParseDate(s); t != nil {
		return *t, t.Add(time.Second), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func exactMatch(col string, t termNode) (string, []any, error) {
	if t.prefix || strings.ContainsAny(t.value, "*") {
		pattern := likePattern(t.value)
		if t.prefix {
			pattern += "%"
		}
		return col + " LIKE ? ESCAPE '\\'", []any{pattern}, nil
	}
	return col + " = ?", []any{t.value}, nil
}

// labelMatch checks membership in the comma separated lowercase label list.
func labelMatch(t termNode) (string, []any, error) {
	value := strings.ToLower(t.value)
	if t.prefix || strings.Contains(value, "*") {
		pattern := "%," + likePattern(value)
		if t.prefix {
			pattern += "%"
		}
		pattern += ",%"
		return "(',' || d.labels_norm || ',') LIKE ? ESCAPE '\\'", []any{pattern}, nil
	}
	return "instr(',' || d.labels_norm || ',', ?) > 0", []any{"," + value + ","}, nil
}

// ftsQuote wraps a value for FTS5, doubling embedded quotes.
func ftsQuote(value string, prefix bool) string {
	quoted := `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
	if prefix {
		quoted += "*"
	}
	return quoted
}

// likePattern escapes LIKE metacharacters and turns '*' into '%'.
func likePattern(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch r {
		case '\\', '%', '_':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '*':
			b.WriteByte('%')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
