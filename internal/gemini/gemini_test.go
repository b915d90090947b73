package gemini

import (
	"encoding/base64"
	"testing"
)

func TestDecodeImage(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}
	enc := base64.StdEncoding.EncodeToString(raw)

	format, data, err := decodeImage("data:image/png;base64," + enc)
	if err != nil {
		t.Fatalf("decodeImage data URL: %v", err)
	}
	if format != "png" || string(data) != string(raw) {
		t.Fatalf("data URL: format=%q data=%v", format, data)
	}

	format, _, err = decodeImage(enc)
	if err != nil || format != "jpeg" {
		t.Fatalf("bare base64: format=%q err=%v", format, err)
	}

	if _, _, err := decodeImage("data:image/png;base64"); err == nil {
		t.Fatalf("missing comma: expected error")
	}
	if _, _, err := decodeImage("not base64!!"); err == nil {
		t.Fatalf("invalid base64: expected error")
	}
}

func TestSupportsGenerate(t *testing.T) {
	if !supportsGenerate([]string{"countTokens", "generateContent"}) {
		t.Fatalf("generateContent not detected")
	}
	if supportsGenerate([]string{"embedContent"}) {
		t.Fatalf("embedding-only model reported as generative")
	}
}
