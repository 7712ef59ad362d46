// Package decoder turns raw mbox message bytes into structured, indexable
// messages. Decoding is best-effort throughout: header or body failures
// degrade to raw or empty values and never abort indexing of a message.
package decoder

import (
	"bytes"
	"io"
	"log/slog"
	"mime"
	"net/mail"
	"net/textproto"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/k3a/html2text"

	"github.com/dhcgn/mbox-search/model"
)

// DefaultLabelHeader is the repeatable header carrying message labels in
// Gmail Takeout exports.
const DefaultLabelHeader = "X-Gmail-Labels"

var foldedSpace = regexp.MustCompile(`\s+`)

// Decoder parses raw messages. The zero value is not usable, construct with
// New.
type Decoder struct {
	labelHeader string
	logger      *slog.Logger
}

// New returns a Decoder collecting labels from the given header name
// (DefaultLabelHeader when empty). The logger may be nil.
func New(labelHeader string, logger *slog.Logger) *Decoder {
	if labelHeader == "" {
		labelHeader = DefaultLabelHeader
	}
	return &Decoder{labelHeader: labelHeader, logger: logger}
}

// Decode parses a raw message (without its mbox separator line) into a
// DecodedMessage. It never fails; malformed input yields best-effort fields.
func (d *Decoder) Decode(raw []byte) model.DecodedMessage {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && entity == nil {
		if d.logger != nil {
			d.logger.Debug("message unparseable, falling back to plain header scan", "err", err)
		}
		return d.decodeFallback(raw)
	}
	if err != nil && d.logger != nil {
		d.logger.Debug("partial message decode", "err", err)
	}

	msg := model.DecodedMessage{
		Subject:    headerText(entity.Header, "Subject"),
		Sender:     headerText(entity.Header, "From"),
		Recipients: headerText(entity.Header, "To"),
		DateRaw:    headerText(entity.Header, "Date"),
		MessageID:  strings.TrimSpace(headerText(entity.Header, "Message-Id")),
		Labels:     collectLabels(entity.Header, d.labelHeader),
	}
	msg.Date = ParseDate(msg.DateRaw)
	msg.Body = extractBody(entity)
	return msg
}

// headerText returns the decoded header value, falling back to the raw text
// when encoded-word decoding fails.
func headerText(h message.Header, key string) string {
	if v, err := h.Text(key); err == nil {
		return v
	}
	return h.Get(key)
}

// collectLabels gathers every occurrence of the label header, splits on
// commas, collapses folded whitespace, trims, and unions the result with
// case preserved.
func collectLabels(h message.Header, key string) []string {
	seen := make(map[string]struct{})
	fields := h.FieldsByKey(key)
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		for _, part := range strings.Split(value, ",") {
			label := strings.TrimSpace(foldedSpace.ReplaceAllString(part, " "))
			if label != "" {
				seen[label] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// extractBody walks the MIME part tree depth-first and concatenates every
// text/plain part. When the message carries no text/plain part at all, the
// first text/html part is converted to text instead. Charset and transfer
// decoding is handled by go-message; invalid bytes are substituted.
func extractBody(entity *message.Entity) string {
	var plain strings.Builder
	var htmlFallback string

	var walk func(e *message.Entity, root bool)
	walk = func(e *message.Entity, root bool) {
		if mr := e.MultipartReader(); mr != nil {
			for {
				part, err := mr.NextPart()
				if err == io.EOF {
					break
				}
				if err != nil {
					// Malformed part tree: keep what was readable.
					break
				}
				walk(part, false)
			}
			return
		}

		mediaType, _, err := e.Header.ContentType()
		if err != nil {
			mediaType = "text/plain"
		}
		switch {
		case mediaType == "text/plain":
			content, _ := io.ReadAll(e.Body)
			plain.Write(content)
		case mediaType == "text/html":
			if htmlFallback == "" {
				content, _ := io.ReadAll(e.Body)
				htmlFallback = html2text.HTML2Text(string(content))
			}
		case root:
			// A single-part message is decoded regardless of its type.
			content, _ := io.ReadAll(e.Body)
			plain.Write(content)
		}
	}
	walk(entity, true)

	if plain.Len() > 0 {
		return strings.ToValidUTF8(plain.String(), "�")
	}
	return strings.ToValidUTF8(htmlFallback, "�")
}

// decodeFallback handles messages go-message rejects outright. Headers are
// scanned with net/mail and decoded with mime.WordDecoder; the body is kept
// raw.
func (d *Decoder) decodeFallback(raw []byte) model.DecodedMessage {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		// Not even headers: index the whole thing as body so the message is
		// still findable.
		return model.DecodedMessage{Body: strings.ToValidUTF8(string(raw), "�")}
	}

	decode := new(mime.WordDecoder)
	decoded := func(key string) string {
		value := msg.Header.Get(key)
		if value == "" {
			return ""
		}
		if text, err := decode.DecodeHeader(value); err == nil {
			return text
		}
		return value
	}

	out := model.DecodedMessage{
		Subject:    decoded("Subject"),
		Sender:     decoded("From"),
		Recipients: decoded("To"),
		DateRaw:    decoded("Date"),
		MessageID:  strings.TrimSpace(msg.Header.Get("Message-Id")),
	}
	out.Date = ParseDate(out.DateRaw)

	seen := make(map[string]struct{})
	for _, value := range msg.Header[textproto.CanonicalMIMEHeaderKey(d.labelHeader)] {
		for _, part := range strings.Split(value, ",") {
			label := strings.TrimSpace(foldedSpace.ReplaceAllString(part, " "))
			if label != "" {
				seen[label] = struct{}{}
			}
		}
	}
	for label := range seen {
		out.Labels = append(out.Labels, label)
	}
	sort.Strings(out.Labels)

	if body, err := io.ReadAll(msg.Body); err == nil {
		out.Body = strings.ToValidUTF8(string(body), "�")
	}
	return out
}

// ParseDate parses an RFC 5322 date header, with fallback layouts for the
// malformed variants mail archives accumulate. Returns nil when the value is
// unparseable.
func ParseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if t, err := mail.ParseDate(value); err == nil {
		return &t
	}
	layouts := []string{
		"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
		"Mon, 2 Jan 2006 15:04:05",
		"2 Jan 2006 15:04:05",
		"Mon, 2 Jan 2006 15:04",
		"2 Jan 2006 15:04",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
