package canonhash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonicalize re-encodes a JSON document with object keys sorted at every
// nesting depth. Number literals are preserved verbatim so canonicalization
// never changes a value, only key order and whitespace.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonhash: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("canonhash: trailing data after document")
	}
	return json.Marshal(v)
}

// SumRaw hashes the canonical form of a JSON document.
func SumRaw(raw []byte) (string, []byte, error) {
	canon, err := Canonicalize(raw)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(canon)
	return "sha256:" + hex.EncodeToString(sum[:]), canon, nil
}

// SumObject hashes the canonical JSON form of any marshalable value.
func SumObject(v any) (string, []byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	return SumRaw(b)
}
