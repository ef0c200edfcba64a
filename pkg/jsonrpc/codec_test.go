package jsonrpc

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Message{
		&Request{ID: NewNumberID(1), Method: "ping", Params: nil},
		&Request{ID: NewStringID("a"), Method: "tools/call", Params: json.RawMessage(`{"name":"x"}`)},
		&Notification{Method: "notifications/initialized"},
		&Response{ID: NewNumberID(1), Result: json.RawMessage(`{}`)},
		&Response{ID: NewStringID("a"), Error: NewError(CodeMethodNotFound, "nope")},
	}
	for _, want := range cases {
		raw, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%#v): %v", want, err)
		}
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode(%s): %v", raw, err)
		}
		gotRaw, _ := Encode(got)
		if !bytes.Equal(raw, gotRaw) {
			t.Errorf("round trip mismatch: %s != %s", raw, gotRaw)
		}
	}
}

func TestDecodeRejectsBothResultAndError(t *testing.T) {
	_, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":-1,"message":"x"}}`))
	if err == nil {
		t.Fatal("expected error for result+error present")
	}
}

func TestDecodeRejectsMissingBoth(t *testing.T) {
	_, err := Decode([]byte(`{"jsonrpc":"2.0","id":1}`))
	if err == nil {
		t.Fatal("expected error for neither result nor error present")
	}
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	_, err := Decode([]byte(`{"jsonrpc":"1.0","id":1,"method":"ping"}`))
	if err == nil {
		t.Fatal("expected InvalidVersion-shaped error")
	}
}

func TestDecodeEmptyBatchRejected(t *testing.T) {
	_, err := Decode([]byte(`[]`))
	if err != ErrEmptyBatch {
		t.Fatalf("got %v, want ErrEmptyBatch", err)
	}
}

func TestDecodeBatchMixed(t *testing.T) {
	raw := []byte(`[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","method":"notifications/progress"}]`)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode batch: %v", err)
	}
	batch, ok := msg.(Batch)
	if !ok || len(batch) != 2 {
		t.Fatalf("expected 2-element batch, got %#v", msg)
	}
	if _, ok := batch[0].(*Request); !ok {
		t.Errorf("batch[0] should be *Request, got %T", batch[0])
	}
	if _, ok := batch[1].(*Notification); !ok {
		t.Errorf("batch[1] should be *Notification, got %T", batch[1])
	}
}

// S1: ping round trip per spec §8.
func TestPingScenario(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","method":"ping","id":1}`)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	req, ok := msg.(*Request)
	if !ok || req.Method != "ping" {
		t.Fatalf("expected ping request, got %#v", msg)
	}
	resp, err := NewResult(req.ID, map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	out, err := Encode(resp)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"jsonrpc":"2.0","id":1,"result":{}}`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}

func TestLineDecoderFramesMultipleEnvelopesAcrossFeeds(t *testing.T) {
	var d LineDecoder
	msgs, err, fatal := d.Feed([]byte(`{"jsonrpc":"2.0","method":"ping","id":1}` + "\n{\"jsonrpc\":\"2.0\""))
	if err != nil || fatal {
		t.Fatalf("unexpected error: %v fatal=%v", err, fatal)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message from first feed, got %d", len(msgs))
	}
	msgs, err, fatal = d.Feed([]byte(`,"method":"ping","id":2}` + "\n"))
	if err != nil || fatal {
		t.Fatalf("unexpected error: %v fatal=%v", err, fatal)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message from second feed, got %d", len(msgs))
	}
}

func TestLineDecoderRejectsOversizeFrame(t *testing.T) {
	d := LineDecoder{MaxSize: 8}
	_, err, fatal := d.Feed([]byte(`{"jsonrpc":"2.0","method":"ping","id":1}` + "\n"))
	if err != ErrOversizeFrame || !fatal {
		t.Fatalf("expected oversize frame error, got %v fatal=%v", err, fatal)
	}
}

func TestLineDecoderRecoversFromStructuralParseError(t *testing.T) {
	var d LineDecoder
	msgs, err, fatal := d.Feed([]byte("not json\n"))
	if err != nil || fatal {
		t.Fatalf("structural errors should be recoverable at this layer, got %v fatal=%v", err, fatal)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 parse-failure message, got %d", len(msgs))
	}
	if _, ok := AsParseFailure(msgs[0]); !ok {
		t.Fatalf("expected parse failure, got %#v", msgs[0])
	}
}

func TestSSEDecoderFramesDataEvents(t *testing.T) {
	var d SSEDecoder
	input := "id: 1\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"ping\",\"id\":1}\n\n"
	msgs, err := d.Feed([]byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	req, ok := msgs[0].(*Request)
	if !ok || req.Method != "ping" {
		t.Fatalf("expected ping request, got %#v", msgs[0])
	}
}

func TestIDStructuralEquality(t *testing.T) {
	if !NewStringID("a").Equal(NewStringID("a")) {
		t.Error("expected equal string ids")
	}
	if NewStringID("a").Equal(NewNumberID(1)) {
		t.Error("expected different kinds to be unequal")
	}
	if NewNumberID(1).Equal(NewNumberID(2)) {
		t.Error("expected different numbers to be unequal")
	}
}
