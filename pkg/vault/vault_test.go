package vault

import (
	"strings"
	"testing"

	"github.com/nabilpatel4012/smaapi/pkg/apperr"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cases := []string{"x", "hello world", `{"user":"admin","password":"s3cret"}`, strings.Repeat("a", 1000)}
	for _, plain := range cases {
		sealed, err := Encrypt("key-material", plain)
		if err != nil {
			t.Fatalf("encrypt %q: %v", plain, err)
		}
		got, err := Decrypt("key-material", sealed)
		if err != nil {
			t.Fatalf("decrypt %q: %v", plain, err)
		}
		if got != plain {
			t.Fatalf("round trip mismatch: got %q want %q", got, plain)
		}
	}
}

func TestEncryptProducesFreshIV(t *testing.T) {
	a, err := Encrypt("key", "same plaintext")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := Encrypt("key", "same plaintext")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if a == b {
		t.Fatal("two encryptions of the same plaintext produced identical output")
	}
}

func TestDecryptPayloadIsSelfDescribing(t *testing.T) {
	sealed, err := Encrypt("key", "payload")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !strings.Contains(sealed, ":") {
		t.Fatalf("sealed payload missing delimiter: %q", sealed)
	}
}

func TestDecryptRejectsMalformedPayloads(t *testing.T) {
	cases := map[string]string{
		"missing delimiter": "deadbeef",
		"bad iv hex":        "zzzz:deadbeef",
		"short iv":          "dead:deadbeefdeadbeefdeadbeefdeadbeef",
		"bad cipher hex":    "00000000000000000000000000000000:zzzz",
		"empty cipher":      "00000000000000000000000000000000:",
		"unaligned cipher":  "00000000000000000000000000000000:dead",
	}
	for name, payload := range cases {
		if _, err := Decrypt("key", payload); !apperr.IsCode(err, apperr.CodeDecryptFailed) {
			t.Errorf("%s: expected decrypt_failed, got %v", name, err)
		}
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	sealed, err := Encrypt("right-key", "secret credentials")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := Decrypt("wrong-key", sealed)
	if err == nil && got == "secret credentials" {
		t.Fatal("wrong key recovered the plaintext")
	}
	// Padding almost never survives a wrong key; when it does not, the
	// error must carry the decrypt_failed kind.
	if err != nil && !apperr.IsCode(err, apperr.CodeDecryptFailed) {
		t.Fatalf("expected decrypt_failed, got %v", err)
	}
}
