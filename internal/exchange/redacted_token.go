package exchange

// RedactedToken wraps a sensitive token string so it cannot leak through
// logging or serialization. Every formatting and marshaling path yields
// "[REDACTED]"; only an explicit Value() call exposes the token.
type RedactedToken struct {
	value string
}

// NewRedactedToken wraps a token value.
func NewRedactedToken(value string) RedactedToken {
	return RedactedToken{value: value}
}

// Value returns the actual token. Call it only at the point the token goes
// into an Authorization header or request body; never log the result.
func (t RedactedToken) Value() string {
	return t.value
}

// IsEmpty reports whether no token is wrapped.
func (t RedactedToken) IsEmpty() bool {
	return t.value == ""
}

// String implements fmt.Stringer.
func (t RedactedToken) String() string {
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (t RedactedToken) GoString() string {
	return "exchange.RedactedToken{[REDACTED]}"
}

// MarshalText implements encoding.TextMarshaler.
func (t RedactedToken) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// MarshalJSON implements json.Marshaler.
func (t RedactedToken) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}
