package flowstore

import (
	"errors"
	"testing"

	"callflow-platform/internal/callflow"
)

func TestDecodeBlocks_LegacyGreetingAndMenu(t *testing.T) {
	raw := []byte(`{"greeting":"Hi","menu":{"prompt":"Press 1","options":[{"digit":"1","target":"sales"}]}}`)

	blocks, legacy, err := DecodeBlocks(raw)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !legacy {
		t.Fatalf("expected legacy shape to be detected")
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}

	say, menu := blocks[0], blocks[1]
	if say.Type != callflow.BlockSay || say.Config.Text != "Hi" {
		t.Fatalf("unexpected say block: %+v", say)
	}
	if len(say.Next) != 1 || say.Next[0] != menu.ID {
		t.Fatalf("expected say.next -> menu, got %v", say.Next)
	}
	if menu.Type != callflow.BlockMenu || menu.Config.Prompt != "Press 1" {
		t.Fatalf("unexpected menu block: %+v", menu)
	}
	if len(menu.Config.Options) != 1 || menu.Config.Options[0].Digit != "1" {
		t.Fatalf("expected one option on digit 1, got %+v", menu.Config.Options)
	}
	if say.Position == menu.Position {
		t.Fatalf("expected distinct grid positions")
	}

	if _, err := callflow.Validate(blocks); err != nil {
		t.Fatalf("converted graph should validate: %v", err)
	}
}

func TestDecodeBlocks_LegacyIsStableAcrossConversions(t *testing.T) {
	raw := []byte(`{"greeting":"Hi","menu":{"prompt":"Press 1","options":[{"digit":1,"label":"Sales"}]}}`)
	a, _, err := DecodeBlocks(raw)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	b, _, err := DecodeBlocks(raw)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("block ids differ between conversions: %q vs %q", a[i].ID, b[i].ID)
		}
	}
	if a[1].Config.Options[0].Digit != "1" {
		t.Fatalf("numeric digit should decode as string, got %q", a[1].Config.Options[0].Digit)
	}
}

func TestDecodeBlocks_GraphAndWrapper(t *testing.T) {
	graph := []byte(`[{"id":"a","type":"gather","config":{"prompt":"p","options":[{"digit":"1","target":"b"}]},"next":["b"]},{"id":"b","type":"hangup","config":{}}]`)
	blocks, legacy, err := DecodeBlocks(graph)
	if err != nil || legacy {
		t.Fatalf("unexpected decode result: legacy=%v err=%v", legacy, err)
	}
	if blocks[0].Type != callflow.BlockMenu {
		t.Fatalf("expected gather to normalize to menu, got %q", blocks[0].Type)
	}
	if blocks[1].Next == nil {
		t.Fatalf("expected next to be normalized to an empty slice")
	}

	wrapped := []byte(`{"blocks":[{"id":"a","type":"hangup","config":{},"next":[]}]}`)
	blocks, legacy, err = DecodeBlocks(wrapped)
	if err != nil || legacy || len(blocks) != 1 {
		t.Fatalf("unexpected wrapper decode: %v %v %v", blocks, legacy, err)
	}
}

func TestDecodeBlocks_EmptyAndUnknown(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte(""), []byte("null")} {
		blocks, _, err := DecodeBlocks(raw)
		if err != nil || len(blocks) != 0 {
			t.Fatalf("expected empty block list for %q, got %v %v", raw, blocks, err)
		}
	}
	if _, _, err := DecodeBlocks([]byte(`{"foo":1}`)); !errors.Is(err, ErrUnknownShape) {
		t.Fatalf("expected ErrUnknownShape, got %v", err)
	}
}

func TestEncodeBlocks_RoundTripsGraph(t *testing.T) {
	in := []callflow.Block{
		{ID: "a", Type: callflow.BlockSay, Config: callflow.Config{Text: "x"}, Position: callflow.Position{X: 1, Y: 2}, Next: []string{"b"}},
		{ID: "b", Type: callflow.BlockHangup},
	}
	raw, err := EncodeBlocks(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, legacy, err := DecodeBlocks(raw)
	if err != nil || legacy {
		t.Fatalf("decode: legacy=%v err=%v", legacy, err)
	}
	if out[0].Position != in[0].Position || out[0].Next[0] != "b" {
		t.Fatalf("unexpected round trip: %+v", out[0])
	}
}
