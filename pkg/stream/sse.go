package stream

import (
	"bufio"
	"io"
	"strings"
)

// Event is one decoded Server-Sent-Events frame.
type Event struct {
	ID   string
	Type string
	Data string
}

// Parser implements SSE framing. Lines are fed in one at a time; a blank
// line terminates the buffered event and returns it. Multiple data: lines
// are joined with "\n", which preserves embedded newlines in JSON payloads
// that were re-wrapped across SSE lines.
type Parser struct {
	id    string
	event string
	data  []string
}

// Feed consumes one raw line. It returns the completed event when the line
// is the blank terminator and the buffer holds any data, nil otherwise.
func (p *Parser) Feed(line string) *Event {
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")

	if line == "" {
		return p.flush()
	}
	if strings.HasPrefix(line, ":") {
		// Comment line, ignored per the SSE spec.
		return nil
	}

	field, value := splitField(line)
	switch field {
	case "id":
		p.id = value
	case "event":
		p.event = value
	case "data":
		p.data = append(p.data, value)
	}
	return nil
}

// Ingest feeds a batch of raw lines and returns the first completed event,
// or nil when the lines do not terminate one.
func (p *Parser) Ingest(lines []string) *Event {
	for _, line := range lines {
		if ev := p.Feed(line); ev != nil {
			return ev
		}
	}
	return nil
}

func (p *Parser) flush() *Event {
	if len(p.data) == 0 {
		p.id, p.event = "", ""
		return nil
	}
	ev := &Event{
		ID:   p.id,
		Type: p.event,
		Data: strings.Join(p.data, "\n"),
	}
	if ev.Type == "" {
		ev.Type = "message"
	}
	p.id, p.event, p.data = "", "", nil
	return ev
}

func splitField(line string) (field, value string) {
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	// A single space after the colon is part of the framing, not the value.
	return field, strings.TrimPrefix(value, " ")
}

// Decoder reads SSE events from a wire stream.
type Decoder struct {
	scanner *bufio.Scanner
	parser  Parser
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{scanner: bufio.NewScanner(r)}
}

// Next returns the next complete event, or io.EOF when the stream ends.
func (d *Decoder) Next() (*Event, error) {
	for d.scanner.Scan() {
		if ev := d.parser.Feed(d.scanner.Text()); ev != nil {
			return ev, nil
		}
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	// A stream that ends without a trailing blank line still terminates its
	// final event.
	if ev := d.parser.flush(); ev != nil {
		return ev, nil
	}
	return nil, io.EOF
}
