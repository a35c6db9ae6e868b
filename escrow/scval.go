package escrow

import (
	"bytes"
	"encoding/json"
	"math/big"
	"sort"
	"strings"
)

// NotAvailable is the sentinel rendered for any absent or undecodable field.
// Missing data degrades to this value; it is never an error.
const NotAvailable = "N/A"

// Kind discriminates the tagged-value variants stored on chain.
type Kind uint8

const (
	// KindVoid marks an absent value. It renders as the N/A sentinel.
	KindVoid Kind = iota
	// KindBool is a boolean.
	KindBool
	// KindStr is a string or symbol.
	KindStr
	// KindAddr is an account or contract address string.
	KindAddr
	// KindInt128 is a 128-bit signed integer carried as an arbitrary
	// precision value. Narrower numeric encodings fold into this variant.
	KindInt128
	// KindVec is an ordered list of values.
	KindVec
	// KindMap is an ordered list of key/value pairs.
	KindMap
)

// ScVal is one decoded ledger value. Exactly one variant is populated,
// selected by Kind; call sites switch on the tag rather than probing fields.
type ScVal struct {
	Kind Kind
	Bool bool
	Str  string
	Addr string
	Big  *big.Int
	Vec  []ScVal
	Map  []MapEntry
}

// MapEntry is one key/value pair inside a map-valued ScVal.
type MapEntry struct {
	Key ScVal `json:"key"`
	Val ScVal `json:"val"`
}

// Void reports whether the value is absent.
func (v ScVal) Void() bool { return v.Kind == KindVoid }

// UnmarshalJSON decodes the node's tagged-value JSON. Unknown or malformed
// shapes decode to Void so that a single odd field never fails a whole
// storage tree.
func (v *ScVal) UnmarshalJSON(data []byte) error {
	*v = ScVal{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	// Bare scalars appear in event topics.
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			*v = ScVal{Kind: KindStr, Str: s}
		}
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err == nil {
			*v = ScVal{Kind: KindBool, Bool: b}
		}
		return nil
	case '[':
		var vec []ScVal
		if err := json.Unmarshal(trimmed, &vec); err == nil {
			*v = ScVal{Kind: KindVec, Vec: vec}
		}
		return nil
	case '{':
	default:
		if n, ok := new(big.Int).SetString(string(trimmed), 10); ok {
			*v = ScVal{Kind: KindInt128, Big: n}
		}
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil
	}
	if len(fields) == 0 {
		// Empty object denotes "absent".
		return nil
	}

	if raw, ok := firstOf(fields, "bool", "b"); ok {
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			*v = ScVal{Kind: KindBool, Bool: b}
		}
		return nil
	}
	if raw, ok := firstOf(fields, "string", "str", "symbol", "sym"); ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			*v = ScVal{Kind: KindStr, Str: s}
		}
		return nil
	}
	if raw, ok := firstOf(fields, "address"); ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			*v = ScVal{Kind: KindAddr, Addr: s}
		}
		return nil
	}
	if raw, ok := firstOf(fields, "i128", "u128"); ok {
		if n, ok := int128Flexible(raw); ok {
			*v = ScVal{Kind: KindInt128, Big: n}
		}
		return nil
	}
	if raw, ok := firstOf(fields, "u32", "i32", "u64", "i64", "timepoint", "duration"); ok {
		if n, ok := numberFlexible(raw); ok {
			*v = ScVal{Kind: KindInt128, Big: n}
		}
		return nil
	}
	if raw, ok := firstOf(fields, "vec"); ok {
		var vec []ScVal
		if err := json.Unmarshal(raw, &vec); err == nil {
			*v = ScVal{Kind: KindVec, Vec: vec}
		}
		return nil
	}
	if raw, ok := firstOf(fields, "map"); ok {
		var entries []MapEntry
		if err := json.Unmarshal(raw, &entries); err == nil {
			*v = ScVal{Kind: KindMap, Map: entries}
		}
		return nil
	}
	// Unknown tag: leave as Void.
	return nil
}

// MarshalJSON round-trips the value back into tagged JSON. Mainly used when
// building simulation arguments.
func (v ScVal) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindBool:
		return json.Marshal(map[string]bool{"bool": v.Bool})
	case KindStr:
		return json.Marshal(map[string]string{"string": v.Str})
	case KindAddr:
		return json.Marshal(map[string]string{"address": v.Addr})
	case KindInt128:
		text := "0"
		if v.Big != nil {
			text = v.Big.String()
		}
		return json.Marshal(map[string]string{"i128": text})
	case KindVec:
		return json.Marshal(map[string][]ScVal{"vec": v.Vec})
	case KindMap:
		return json.Marshal(map[string][]MapEntry{"map": v.Map})
	default:
		return []byte("{}"), nil
	}
}

func firstOf(fields map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, key := range keys {
		if raw, ok := fields[key]; ok {
			return raw, true
		}
	}
	return nil, false
}

// int128Flexible accepts both wire encodings of a 128-bit integer: a decimal
// string, or a {hi, lo} pair of unsigned 64-bit magnitudes combined as
// hi<<64 | lo. Any other shape yields (nil, false) -- never an error.
func int128Flexible(raw json.RawMessage) (*big.Int, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, false
		}
		n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
		return n, ok
	}
	if trimmed[0] == '{' {
		var pair map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &pair); err != nil {
			return nil, false
		}
		hiRaw, hasHi := pair["hi"]
		loRaw, hasLo := pair["lo"]
		if !hasHi || !hasLo {
			return nil, false
		}
		hi, ok := uint64Flexible(hiRaw)
		if !ok {
			return nil, false
		}
		lo, ok := uint64Flexible(loRaw)
		if !ok {
			return nil, false
		}
		n := new(big.Int).SetUint64(hi)
		n.Lsh(n, 64)
		n.Or(n, new(big.Int).SetUint64(lo))
		return n, true
	}
	return numberFlexible(trimmed)
}

// numberFlexible parses a JSON number or numeric string into a big.Int.
func numberFlexible(raw json.RawMessage) (*big.Int, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, false
		}
		return new(big.Int).SetString(strings.TrimSpace(s), 10)
	}
	return new(big.Int).SetString(string(trimmed), 10)
}

// uint64Flexible parses a JSON number or numeric string as an unsigned 64-bit
// magnitude.
func uint64Flexible(raw json.RawMessage) (uint64, bool) {
	n, ok := numberFlexible(raw)
	if !ok || n.Sign() < 0 || n.BitLen() > 64 {
		return 0, false
	}
	return n.Uint64(), true
}

// BigInt extracts the value as an arbitrary-precision integer. Int128 values
// return directly; strings are accepted when they parse as decimal integers.
func (v ScVal) BigInt() (*big.Int, bool) {
	switch v.Kind {
	case KindInt128:
		if v.Big == nil {
			return nil, false
		}
		return new(big.Int).Set(v.Big), true
	case KindStr:
		return new(big.Int).SetString(strings.TrimSpace(v.Str), 10)
	default:
		return nil, false
	}
}

// Text extracts the value as a display string when it carries one.
func (v ScVal) Text() (string, bool) {
	switch v.Kind {
	case KindStr:
		return v.Str, true
	case KindAddr:
		return v.Addr, true
	default:
		return "", false
	}
}

// Display renders the value for presentation. Absent and undecodable values
// render the N/A sentinel.
func (v ScVal) Display() string {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindStr:
		return v.Str
	case KindAddr:
		return v.Addr
	case KindInt128:
		if v.Big == nil {
			return NotAvailable
		}
		return v.Big.String()
	case KindVec:
		parts := make([]string, 0, len(v.Vec))
		for _, item := range v.Vec {
			parts = append(parts, item.Display())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		parts := make([]string, 0, len(v.Map))
		for _, entry := range v.Map {
			parts = append(parts, entry.Key.Display()+": "+entry.Val.Display())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return NotAvailable
	}
}

// Entry is one symbolic key/value pair of a contract's escrow state.
type Entry struct {
	Key string
	Val ScVal
}

// EscrowMap is the ordered escrow state fetched from one contract. It is
// immutable once fetched; every refresh produces a fresh map.
type EscrowMap []Entry

// Get returns the value stored under the given key.
func (m EscrowMap) Get(key string) (ScVal, bool) {
	for _, entry := range m {
		if entry.Key == key {
			return entry.Val, true
		}
	}
	return ScVal{}, false
}

// Keys returns the stored keys in insertion order.
func (m EscrowMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for _, entry := range m {
		keys = append(keys, entry.Key)
	}
	return keys
}

// mapToEscrowMap flattens a map-valued ScVal into an EscrowMap using each
// key's display string. Non-map values produce an empty map.
func mapToEscrowMap(v ScVal) EscrowMap {
	if v.Kind != KindMap {
		return EscrowMap{}
	}
	out := make(EscrowMap, 0, len(v.Map))
	for _, entry := range v.Map {
		out = append(out, Entry{Key: entry.Key.Display(), Val: entry.Val})
	}
	return out
}

// sortedKeys gives deterministic iteration over display maps.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
