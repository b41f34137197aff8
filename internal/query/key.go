package query

import (
	"bytes"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strings"
)

// Key identifies a cached query. The first element is the resource category
// ("events"); later elements narrow the query, e.g. an id or a params value.
//
// Two keys are equal iff their canonical forms are equal. Each element is
// JSON-encoded, decoded into a generic value and encoded again, so object
// keys come out sorted and zero omitempty fields disappear: ListParams{Max: 3}
// and map[string]any{"max": 3} are the same element. Elements that cannot be
// JSON-encoded are compared by their Go-syntax representation.
type Key []any

// canonicalKey is the precomputed comparable form of a Key
type canonicalKey struct {
	parts []string
	str   string
}

func canonicalize(k Key) canonicalKey {
	parts := make([]string, len(k))
	for i, el := range k {
		parts[i] = canonicalElement(el)
	}
	return canonicalKey{
		parts: parts,
		str:   "[" + strings.Join(parts, ",") + "]",
	}
}

func canonicalElement(el any) string {
	raw, err := json.Marshal(el)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprintf("%#v", el))
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var generic any
	if err := decoder.Decode(&generic); err != nil {
		return string(raw)
	}

	normalized, err := json.Marshal(generic)
	if err != nil {
		return string(raw)
	}
	return string(normalized)
}

// String returns the canonical serialization of the key
func (k Key) String() string {
	return canonicalize(k).str
}

// Equal reports whether k and other have the same canonical form
func (k Key) Equal(other Key) bool {
	return k.String() == other.String()
}

// HasPrefix reports whether prefix is a leading subsequence of k
func (k Key) HasPrefix(prefix Key) bool {
	return canonicalize(k).hasPrefix(canonicalize(prefix))
}

// Hash returns a short stable digest of the key, used for persisted records
func (k Key) Hash() string {
	return canonicalize(k).hash()
}

func (c canonicalKey) hasPrefix(prefix canonicalKey) bool {
	if len(prefix.parts) > len(c.parts) {
		return false
	}
	for i, part := range prefix.parts {
		if c.parts[i] != part {
			return false
		}
	}
	return true
}

func (c canonicalKey) hash() string {
	sum := md5.Sum([]byte(c.str))
	return fmt.Sprintf("%x", sum)
}
