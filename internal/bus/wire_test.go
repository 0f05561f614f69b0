package bus

import (
	"bufio"
	"bytes"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	cases := []Envelope{
		{Topic: T("nav.command"), Payload: []byte(`{"action":"forward"}`)},
		{Topic: T(""), Payload: nil},
		{Topic: T("esp32.raw"), Payload: bytes.Repeat([]byte{0xff}, 4096)},
	}

	for _, want := range cases {
		var buf bytes.Buffer
		if err := writeFrame(&buf, want); err != nil {
			t.Fatalf("writeFrame(%q): %v", want.Topic, err)
		}
		got, err := readFrame(bufio.NewReader(&buf))
		if err != nil {
			t.Fatalf("readFrame(%q): %v", want.Topic, err)
		}
		if got.Topic.String() != want.Topic.String() {
			t.Errorf("topic = %q, want %q", got.Topic, want.Topic)
		}
		if !bytes.Equal(got.Payload, want.Payload) {
			t.Errorf("payload = %v, want %v", got.Payload, want.Payload)
		}
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x7f, 0xff, 0xff, 0xff}) // bogus huge topic length
	if _, err := readFrame(bufio.NewReader(&buf)); err == nil {
		t.Fatal("expected error for oversized topic length, got nil")
	}
}

func TestReadFrameEOF(t *testing.T) {
	if _, err := readFrame(bufio.NewReader(bytes.NewReader(nil))); err == nil {
		t.Fatal("expected error reading an empty stream, got nil")
	}
}
