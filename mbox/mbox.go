package mbox

import (
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"

	mboxlib "github.com/emersion/go-mbox"
)

// MboxMessage represents a single parsed message from an mbox file for the
// statistics path, where byte extents are not needed.
type MboxMessage struct {
	Headers mail.Header
	Body    []byte
}

// Read opens an mbox file and iterates through its messages, calling the
// provided callback for each message. Messages that fail to parse are
// skipped.
func Read(path string, callback func(m *MboxMessage) error) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		msg, err := mail.ReadMessage(msgReader)
		if err != nil {
			continue
		}

		body, err := io.ReadAll(msg.Body)
		if err != nil {
			continue
		}

		if err := callback(&MboxMessage{Headers: msg.Header, Body: body}); err != nil {
			return err
		}
	}
}
