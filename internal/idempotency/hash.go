package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// CanonicalHash returns the SHA-256 hex digest of body after recursively
// sorting every map's keys, so the same logical request produces the
// same hash regardless of how its encoder ordered fields. Sequences
// keep their original order — only key order is unstable across
// encoders, never element order (spec.md §4.C Body canonicalization,
// testable property 7).
func CanonicalHash(body []byte) (string, error) {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return "", err
	}
	canon := canonicalize(v)
	raw, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize rewrites a decoded JSON value into a form whose
// encoding/json output has a deterministic field order: maps become
// ordered slices of key/value pairs, slices recurse element-wise,
// scalars pass through unchanged.
func canonicalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([][2]interface{}, 0, len(keys))
		for _, k := range keys {
			out = append(out, [2]interface{}{k, canonicalize(t[k])})
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return t
	}
}
