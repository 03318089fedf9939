package archive

import (
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/dhcgn/eml-to-mbox/transcode"
)

// Message is one record read back from an archive. Body has the mboxrd
// quoting removed.
type Message struct {
	Headers mail.Header
	Body    []byte
}

// Read opens an mbox archive and calls fn for each message whose headers
// can be parsed. Unparsable records are skipped and counted in the returned
// skipped value.
func Read(path string, fn func(m *Message) error) (skipped int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return skipped, nil
			}
			return skipped, err
		}

		msg, err := mail.ReadMessage(msgReader)
		if err != nil {
			skipped++
			continue
		}

		body, err := io.ReadAll(msg.Body)
		if err != nil {
			skipped++
			continue
		}

		if err := fn(&Message{Headers: msg.Header, Body: transcode.Unescape(body)}); err != nil {
			return skipped, err
		}
	}
}

// Count counts the records of an mbox archive without parsing them.
func Count(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	return CountReader(file)
}

// CountReader counts the records of an mbox stream.
func CountReader(r io.Reader) (int, error) {
	reader := mboxlib.NewReader(r)
	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return count, err
		}
		if _, err := io.Copy(io.Discard, msgReader); err != nil {
			return count, fmt.Errorf("message %d: %w", count, err)
		}
		count++
	}
}
