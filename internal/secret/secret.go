// Package secret holds the small set of values the coordinator must never
// let leak into a log line or a crash dump: ticket preimages, the
// coordinator's private key, and payout preimages once a player reveals
// them.
package secret

// Bytes is a zeroizing wrapper around a byte secret. Its String and
// GoString methods deliberately never print the payload so that an
// accidental %v/%#v on a struct embedding a Bytes doesn't leak it into
// logs, panics, or test failure output.
type Bytes struct {
	b []byte
}

// New copies src into a new Bytes. The caller's slice is left untouched;
// Zero it separately if it also holds sensitive material.
func New(src []byte) Bytes {
	cp := make([]byte, len(src))
	copy(cp, src)
	return Bytes{b: cp}
}

// Reveal returns the underlying bytes. Callers must not retain the
// returned slice past the point they're done with it; prefer handing it
// straight to the function that needs it (e.g. sha256.Sum256) over
// storing it in another variable.
func (s Bytes) Reveal() []byte {
	return s.b
}

// Len reports the secret's length without revealing it.
func (s Bytes) Len() int {
	return len(s.b)
}

// IsZero reports whether the secret holds no material: it is empty, or
// every byte has been wiped by Zero.
func (s Bytes) IsZero() bool {
	for _, c := range s.b {
		if c != 0 {
			return false
		}
	}
	return true
}

// Zero overwrites the backing array with zeroes. Safe to call multiple
// times and safe to call on a zero-value Bytes.
func (s *Bytes) Zero() {
	for i := range s.b {
		s.b[i] = 0
	}
}

// String implements fmt.Stringer without revealing the payload.
func (s Bytes) String() string {
	if s.IsZero() {
		return "secret.Bytes(empty)"
	}
	return "secret.Bytes(redacted)"
}

// GoString implements fmt.GoStringer so that %#v (and libraries such as
// go-spew that prefer it) also redact the payload.
func (s Bytes) GoString() string {
	return s.String()
}
