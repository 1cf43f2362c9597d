// Package token provides random token generation.
//
// Tokens are 63-bit positive integers drawn from crypto/rand. They are
// unguessable handles, so a token issued by one store instance is unknown
// to every other instance with overwhelming probability.
//
// Usage:
//
//	src := token.NewSource()
//	id, err := src.Next()
package token
