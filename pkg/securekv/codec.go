package securekv

import (
	"fmt"
	"strings"
)

// Encoding selects how values are serialized before they are stored.
type Encoding int

const (
	// EncodingTagged prefixes every payload with a discriminator so reads are
	// deterministic.
	EncodingTagged Encoding = iota
	// EncodingLegacy writes strings as-is and everything else as bare JSON,
	// matching stores written before tags existed. Reads must guess.
	EncodingLegacy
)

const (
	tagString = "kv1:s:"
	tagJSON   = "kv1:j:"
)

func encodeValue(v Value, enc Encoding) (string, error) {
	if s, ok := v.AsString(); ok {
		if enc == EncodingLegacy {
			return s, nil
		}
		return tagString + s, nil
	}

	data, err := v.MarshalJSON()
	if err != nil {
		return "", err
	}
	if enc == EncodingLegacy {
		return string(data), nil
	}
	return tagJSON + string(data), nil
}

// decodeValue inverts encodeValue. A tagged JSON payload that fails to parse
// comes back as a string together with a non-nil error so the caller can log
// the fallback; the returned Value is always usable.
func decodeValue(payload string, legacyRead bool) (Value, error) {
	switch {
	case strings.HasPrefix(payload, tagString):
		return String(payload[len(tagString):]), nil
	case strings.HasPrefix(payload, tagJSON):
		body := payload[len(tagJSON):]
		v, err := valueFromJSON([]byte(body))
		if err != nil {
			return String(body), fmt.Errorf("decode tagged JSON: %w", err)
		}
		return v, nil
	case legacyRead:
		if v, err := valueFromJSON([]byte(payload)); err == nil {
			return v, nil
		}
		return String(payload), nil
	default:
		return String(payload), nil
	}
}
