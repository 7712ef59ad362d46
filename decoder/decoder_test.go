package decoder

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_PlainMessage(t *testing.T) {
	raw := []byte("From: Alice <alice@example.com>\r\n" +
		"To: bob@example.com\r\n" +
		"Subject: Meeting notes\r\n" +
		"Date: Thu, 15 Feb 2024 10:30:00 +0100\r\n" +
		"Message-Id: <abc123@example.com>\r\n" +
		"\r\n" +
		"See you at noon.\r\n")

	msg := New("", nil).Decode(raw)

	assert.Equal(t, "Meeting notes", msg.Subject)
	assert.Contains(t, msg.Sender, "alice@example.com")
	assert.Contains(t, msg.Recipients, "bob@example.com")
	assert.Equal(t, "<abc123@example.com>", msg.MessageID)
	require.NotNil(t, msg.Date)
	assert.Equal(t, 2024, msg.Date.Year())
	assert.Contains(t, msg.Body, "See you at noon.")
	assert.Empty(t, msg.Labels)
}

func TestDecode_EncodedSubject(t *testing.T) {
	raw := []byte("From: a@example.com\r\n" +
		"Subject: =?ISO-8859-1?Q?Gr=FC=DFe_aus_M=FCnchen?=\r\n" +
		"\r\n" +
		"hi\r\n")

	msg := New("", nil).Decode(raw)
	assert.Equal(t, "Grüße aus München", msg.Subject)
}

func TestDecode_MultipartPrefersPlainText(t *testing.T) {
	raw := []byte("From: a@example.com\r\n" +
		"Subject: multipart\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=\"SEP\"\r\n" +
		"\r\n" +
		"--SEP\r\n" +
		"Content-Type: text/plain; charset=\"ISO-8859-1\"\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"Caf=E9 tomorrow?\r\n" +
		"--SEP\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>Caf&eacute; <b>tomorrow</b>?</p>\r\n" +
		"--SEP--\r\n")

	msg := New("", nil).Decode(raw)
	assert.Contains(t, msg.Body, "Café tomorrow?")
	assert.NotContains(t, msg.Body, "<p>")
}

func TestDecode_HTMLOnlyFallsBackToText(t *testing.T) {
	raw := []byte("From: a@example.com\r\n" +
		"Subject: html only\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"SEP\"\r\n" +
		"\r\n" +
		"--SEP\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<html><body><p>Quarterly <b>report</b> attached.</p></body></html>\r\n" +
		"--SEP--\r\n")

	msg := New("", nil).Decode(raw)
	assert.Contains(t, msg.Body, "Quarterly report attached.")
	assert.NotContains(t, msg.Body, "<b>")
}

func TestDecode_Labels(t *testing.T) {
	raw := []byte("From: a@example.com\r\n" +
		"Subject: labelled\r\n" +
		"X-Gmail-Labels: Work,\r\n" +
		" Personal\r\n" +
		"X-Gmail-Labels: Archived,Work\r\n" +
		"\r\n" +
		"body\r\n")

	msg := New("", nil).Decode(raw)
	assert.Equal(t, []string{"Archived", "Personal", "Work"}, msg.Labels)
}

func TestDecode_CustomLabelHeader(t *testing.T) {
	raw := []byte("From: a@example.com\r\n" +
		"X-Keywords: urgent, todo\r\n" +
		"X-Gmail-Labels: ShouldBeIgnored\r\n" +
		"\r\n" +
		"body\r\n")

	msg := New("X-Keywords", nil).Decode(raw)
	assert.Equal(t, []string{"todo", "urgent"}, msg.Labels)
}

func TestDecode_BadDateKeepsRaw(t *testing.T) {
	raw := []byte("From: a@example.com\r\n" +
		"Date: not a real date\r\n" +
		"\r\n" +
		"body\r\n")

	msg := New("", nil).Decode(raw)
	assert.Nil(t, msg.Date)
	assert.Equal(t, "not a real date", msg.DateRaw)
}

func TestDecode_GarbageStillIndexable(t *testing.T) {
	raw := []byte("this is not a mail message at all, just text\nwith lines\n")

	msg := New("", nil).Decode(raw)
	assert.Contains(t, msg.Body, "with lines")
}

func TestDecode_InvalidUTF8Substituted(t *testing.T) {
	raw := []byte("From: a@example.com\r\n\r\nbad bytes: \xff\xfe here\r\n")

	msg := New("", nil).Decode(raw)
	assert.Contains(t, msg.Body, "bad bytes")
	assert.True(t, utf8.ValidString(msg.Body))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"Thu, 15 Feb 2024 10:30:00 +0100", true},
		{"15 Feb 2024 10:30:00", true},
		{"2024-02-15 10:30:00", true},
		{"", false},
		{"yesterday", false},
	}
	for _, tt := range tests {
		got := ParseDate(tt.value)
		if tt.ok {
			assert.NotNil(t, got, "value %q", tt.value)
		} else {
			assert.Nil(t, got, "value %q", tt.value)
		}
	}
}
