package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		in   string
		want Message
	}{
		{"SEAT:A1:PRESSED", Message{Kind: KindPressed, SeatID: "A1"}},
		{"SEAT:B10:RELEASED\r\n", Message{Kind: KindReleased, SeatID: "B10"}},
		{"  CONFIGURED:E3 ", Message{Kind: KindConfigured, SeatID: "E3"}},
	}
	for _, tc := range cases {
		got, err := ParseLine(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestParseLineRejectsUnknown(t *testing.T) {
	for _, in := range []string{"", "HELLO", "SEAT:A1", "SEAT::PRESSED", "SEAT:A1:HELD", "CONFIGURED:", "CONFIG:A1"} {
		_, err := ParseLine(in)
		assert.ErrorIs(t, err, ErrUnknownMessage, in)
	}
}

func TestCommands(t *testing.T) {
	assert.Equal(t, "CONFIG:A1", ConfigCommand("A1"))
	assert.Equal(t, "SEAT:C2:OCCUPIED", StateCommand("C2", StateOccupied))
}
