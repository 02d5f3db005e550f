package exchange

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestRedactedToken_NeverLeaks(t *testing.T) {
	token := NewRedactedToken("super-secret-token")

	if got := token.String(); got != "[REDACTED]" {
		t.Errorf("String() = %q", got)
	}
	if got := fmt.Sprintf("%v", token); got != "[REDACTED]" {
		t.Errorf("%%v = %q", got)
	}
	if got := fmt.Sprintf("%#v", token); got != "exchange.RedactedToken{[REDACTED]}" {
		t.Errorf("%%#v = %q", got)
	}

	data, err := json.Marshal(token)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"[REDACTED]"` {
		t.Errorf("json = %s", data)
	}

	text, err := token.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	if string(text) != "[REDACTED]" {
		t.Errorf("text = %s", text)
	}
}

func TestRedactedToken_Value(t *testing.T) {
	token := NewRedactedToken("super-secret-token")
	if token.Value() != "super-secret-token" {
		t.Errorf("Value() = %q", token.Value())
	}
	if token.IsEmpty() {
		t.Error("token should not be empty")
	}
	if !NewRedactedToken("").IsEmpty() {
		t.Error("empty token should report IsEmpty")
	}
}
