package domain

import (
	"strconv"
	"strings"
)

// Token is the opaque handle returned by an upload.
//
// Valid tokens are strictly positive. The zero value is never issued.
type Token int64

// Valid reports whether t could have been issued.
func (t Token) Valid() bool {
	return t > 0
}

// String returns the decimal form of the token.
func (t Token) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// ParseToken parses the decimal form of a token.
func ParseToken(s string) (Token, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrMissingArgument.WithDetails("token is empty")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrMalformedToken.WithCause(err)
	}
	if n <= 0 {
		return 0, ErrMalformedToken.WithDetailsf("token %d is not positive", n)
	}
	return Token(n), nil
}

// MaskToken returns a token representation safe for logs.
func MaskToken(t Token) string {
	s := t.String()
	if len(s) <= 6 {
		return "***"
	}
	return s[:3] + "..." + s[len(s)-3:]
}
