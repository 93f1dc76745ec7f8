package stream

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_SingleEvent(t *testing.T) {
	t.Parallel()

	var p Parser
	require.Nil(t, p.Feed("event: chunk"))
	require.Nil(t, p.Feed(`data: {"text":"hi"}`))

	ev := p.Feed("")
	require.NotNil(t, ev)
	assert.Equal(t, "chunk", ev.Type)
	assert.Equal(t, `{"text":"hi"}`, ev.Data)
}

func TestParser_MultiLineDataJoinedWithNewline(t *testing.T) {
	t.Parallel()

	var p Parser
	ev := p.Ingest([]string{
		"data: first",
		"data: second",
		"",
	})
	require.NotNil(t, ev)
	assert.Equal(t, "first\nsecond", ev.Data)
}

func TestParser_DefaultsAndComments(t *testing.T) {
	t.Parallel()

	var p Parser
	ev := p.Ingest([]string{
		": keep-alive",
		"id: 42",
		"data: payload",
		"",
	})
	require.NotNil(t, ev)
	assert.Equal(t, "message", ev.Type)
	assert.Equal(t, "42", ev.ID)
	assert.Equal(t, "payload", ev.Data)
}

func TestParser_BlankLineWithoutDataEmitsNothing(t *testing.T) {
	t.Parallel()

	var p Parser
	assert.Nil(t, p.Feed("event: ping"))
	assert.Nil(t, p.Feed(""))

	// The empty flush also resets buffered fields.
	ev := p.Ingest([]string{"data: x", ""})
	require.NotNil(t, ev)
	assert.Equal(t, "message", ev.Type)
}

func TestParser_StripsSingleLeadingSpaceOnly(t *testing.T) {
	t.Parallel()

	var p Parser
	ev := p.Ingest([]string{"data:  indented", ""})
	require.NotNil(t, ev)
	assert.Equal(t, " indented", ev.Data)
}

func TestDecoder(t *testing.T) {
	t.Parallel()

	wire := "event: chunk\r\ndata: one\r\n\r\ndata: two"
	d := NewDecoder(strings.NewReader(wire))

	first, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "chunk", first.Type)
	assert.Equal(t, "one", first.Data)

	// The trailing event has no blank terminator but still flushes at EOF.
	second, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "two", second.Data)

	_, err = d.Next()
	assert.Equal(t, io.EOF, err)
}
