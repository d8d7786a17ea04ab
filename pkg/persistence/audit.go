package persistence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// canonicalRow is the stable JSON shape hashed into the audit chain.
// Field order is fixed by struct declaration order (encoding/json
// preserves it), and ChangeDetailsRaw is re-marshalled through
// canonicalizeJSON first so that key ordering inside it can't change
// the hash from one run to the next (spec §4.3 Integrity).
type canonicalRow struct {
	EntityType    string `json:"entity_type"`
	EntityID      int64  `json:"entity_id"`
	ChangeType    string `json:"change_type"`
	ChangedBy     string `json:"changed_by"`
	ChangeDateRFC string `json:"change_date"`
	ChangeDetails string `json:"change_details"`
	CorrelationID string `json:"correlation_id"`
}

// canonicalize renders row into the deterministic byte form that feeds
// the hash chain. It never fails on well-formed input; malformed
// ChangeDetailsRaw is hashed as-is via its raw bytes rather than
// rejected, since a corrupted row must still hash to *something*
// stable for ValidateIntegrity to flag as a mismatch against history.
func canonicalize(row AuditRow) []byte {
	details := canonicalizeJSON(row.ChangeDetailsRaw)

	c := canonicalRow{
		EntityType:    row.EntityType,
		EntityID:      row.EntityID,
		ChangeType:    string(row.ChangeType),
		ChangedBy:     row.ChangedBy,
		ChangeDateRFC: row.ChangeDate.UTC().Format("2006-01-02T15:04:05.000000000Z"),
		ChangeDetails: details,
		CorrelationID: row.CorrelationID,
	}

	b, _ := json.Marshal(c)
	return b
}

// canonicalizeJSON re-encodes arbitrary JSON with sorted object keys so
// two semantically-identical payloads produce identical bytes.
func canonicalizeJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}

	b, err := json.Marshal(sortKeys(v))
	if err != nil {
		return string(raw)
	}
	return string(b)
}

// sortKeys rebuilds maps as ordered slices is not possible in plain
// JSON, so instead we rely on Go's own map marshalling, which as of
// encoding/json always emits object keys in sorted order; this
// function exists to make that reliance explicit and to recurse into
// nested structures uniformly.
func sortKeys(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = sortKeys(t[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return v
	}
}

// chainHash computes h_i = H(h_{i-1} || canonicalize(row)) using
// SHA-256, per the hash-chain algorithm resolved in SPEC_FULL.md.
func chainHash(prevHash string, row AuditRow) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(canonicalize(row))
	return hex.EncodeToString(h.Sum(nil))
}

// genesisHash is h_0, the chain's fixed starting value.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000"
