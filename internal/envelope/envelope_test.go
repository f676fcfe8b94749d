package envelope_test

import (
	"testing"

	"github.com/distlab/maelstrom/internal/envelope"
	"go.akshayshah.org/attest"
)

func TestParseWireRoundTrip(t *testing.T) {
	body, err := envelope.NewBody(map[string]any{"type": "echo", "msg_id": 1, "echo": "hi"})
	attest.Ok(t, err)

	msg := envelope.Message{Src: "c1", Dest: "n1", Body: body}
	line, err := msg.MarshalWire()
	attest.Ok(t, err)

	got, err := envelope.ParseWire(line)
	attest.Ok(t, err)
	attest.Equal(t, got.Src, msg.Src)
	attest.Equal(t, got.Dest, msg.Dest)
	attest.Equal(t, string(got.Body), string(msg.Body))
}

func TestParseWireRejectsMissingFields(t *testing.T) {
	_, err := envelope.ParseWire([]byte(`{"src":"n1","body":{"type":"echo"}}`))
	attest.NotZero(t, err)

	_, err = envelope.ParseWire([]byte(`{"src":"n1","dest":"n2"}`))
	attest.NotZero(t, err)
}

func TestReservedDecodesInReplyTo(t *testing.T) {
	body, err := envelope.NewBody(map[string]any{"type": "echo_ok", "in_reply_to": 7})
	attest.Ok(t, err)
	msg := envelope.Message{Body: body}

	r, err := msg.Reserved()
	attest.Ok(t, err)
	attest.NotZero(t, r.InReplyTo)
	attest.Equal(t, *r.InReplyTo, uint64(7))
	attest.Equal(t, r.Type, "echo_ok")
}

func TestReservedRejectsEmptyBody(t *testing.T) {
	_, err := (envelope.Message{}).Reserved()
	attest.NotZero(t, err)
}
