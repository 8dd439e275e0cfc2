package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const EmailColumn = "emails"

var (
	ErrEmptyInput        = errors.New("CSV file is empty")
	ErrParseFailure      = errors.New("CSV could not be parsed")
	ErrNoValidRecipients = errors.New("No valid email addresses found in CSV")
)

// Delimiters are tried in order; the first one that parses cleanly wins.
var Delimiters = []rune{',', ';', '\t', '|'}

// ParseError carries the parser messages of the last delimiter tried.
type ParseError struct {
	Messages []string
}

func (e *ParseError) Error() string {
	if len(e.Messages) == 0 {
		return "No valid data found in CSV"
	}
	return "CSV parsing errors: " + strings.Join(e.Messages, ", ")
}

func (e *ParseError) Unwrap() error {
	return ErrParseFailure
}

type table struct {
	header []string
	rows   [][]string
}

// Recipients decodes a CSV upload and returns the valid, deduplicated
// addresses of its emails column in encounter order.
func Recipients(raw []byte) ([]string, error) {
	text, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	t, err := parse(text)
	if err != nil {
		return nil, err
	}

	col := t.column(EmailColumn)
	if col < 0 {
		return nil, fmt.Errorf("%w: missing %q column", ErrNoValidRecipients, EmailColumn)
	}

	seen := make(map[string]struct{}, len(t.rows))
	emails := make([]string, 0, len(t.rows))
	for _, row := range t.rows {
		if col >= len(row) {
			continue
		}
		email := strings.TrimSpace(row[col])
		if !IsValidEmail(email) {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		emails = append(emails, email)
	}

	if len(emails) == 0 {
		return nil, ErrNoValidRecipients
	}
	return emails, nil
}

// decode strips a UTF-8 BOM and replaces invalid byte sequences.
func decode(raw []byte) (string, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	return string(out), nil
}

// parse returns the first clean parse whose header has the emails column,
// falling back to the first clean parse at all.
func parse(text string) (*table, error) {
	var (
		fallback *table
		lastErr  *ParseError
	)
	for _, delim := range Delimiters {
		t, messages := parseWith(text, delim)
		if len(messages) > 0 || t == nil || len(t.rows) == 0 {
			lastErr = &ParseError{Messages: messages}
			continue
		}
		if t.column(EmailColumn) >= 0 {
			return t, nil
		}
		if fallback == nil {
			fallback = t
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, lastErr
}

func (t *table) column(name string) int {
	for i, h := range t.header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

func parseWith(text string, delim rune) (*table, []string) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = 0

	var (
		t        *table
		messages []string
	)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			messages = append(messages, err.Error())
			var perr *csv.ParseError
			if errors.As(err, &perr) && errors.Is(perr.Err, csv.ErrFieldCount) {
				continue
			}
			break
		}
		if blank(record) {
			continue
		}
		if t == nil {
			t = &table{header: record}
			continue
		}
		t.rows = append(t.rows, record)
	}
	return t, messages
}

func blank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// IsValidEmail accepts a bare addr-spec whose domain has at least one dot.
func IsValidEmail(email string) bool {
	if email == "" || strings.EqualFold(email, "null") {
		return false
	}
	if strings.ContainsFunc(email, isSpace) {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return false
	}

	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return false
	}
	labels := strings.Split(email[at+1:], ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}
	return len(labels[len(labels)-1]) >= 2
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}
