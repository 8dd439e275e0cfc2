package preparer

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"sort"
	"strings"
	"time"
)

type RawPreparer struct {
	source string
	now    func() time.Time
}

// NewRawPreparer creates a preparer that builds an HTML MIME message sent
// from source unless the message carries its own From.
func NewRawPreparer(source string) *RawPreparer {
	return &RawPreparer{source: source, now: time.Now}
}

// Prepare builds a quoted-printable HTML MIME message with headers.
func (p *RawPreparer) Prepare(_ context.Context, msg *Message) error {
	from := msg.From
	if strings.TrimSpace(from) == "" {
		from = p.source
	}
	if strings.TrimSpace(from) == "" {
		return fmt.Errorf("source email is required")
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	if strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("subject contains invalid characters")
	}

	var b bytes.Buffer
	writeHeader(&b, "From", from)
	writeHeader(&b, "To", msg.To)
	writeHeader(&b, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&b, "Date", p.now().UTC().Format(time.RFC1123Z))
	writeHeader(&b, "MIME-Version", "1.0")
	writeHeader(&b, "Content-Type", "text/html; charset=UTF-8")
	writeHeader(&b, "Content-Transfer-Encoding", "quoted-printable")

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := msg.Headers[k]
		if strings.ContainsAny(k+v, "\r\n") {
			return fmt.Errorf("header %q contains invalid characters", k)
		}
		writeHeader(&b, k, v)
	}
	b.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&b)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return fmt.Errorf("encode body: %w", err)
	}

	msg.Raw = b.Bytes()
	return nil
}

func writeHeader(b *bytes.Buffer, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}
