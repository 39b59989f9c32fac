package client

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// fingerprintSeparator joins the fingerprint components before hashing.
const fingerprintSeparator = "|"

// Fingerprint derives the cache key for a request: the hex-encoded SHA-256
// of text, model, the system instruction (when non-nil) and a canonical
// rendering of options (when non-empty), joined by "|".
//
// Option insertion order never matters: keys are sorted, and nested maps
// are rendered with sorted keys by encoding/json.
func Fingerprint(text, model string, systemInstruction *string, options map[string]any) string {
	components := []string{text, model}
	if systemInstruction != nil {
		components = append(components, *systemInstruction)
	}
	if len(options) > 0 {
		components = append(components, renderOptions(options))
	}

	sum := sha256.Sum256([]byte(strings.Join(components, fingerprintSeparator)))
	return hex.EncodeToString(sum[:])
}

// renderOptions renders options as a JSON object with sorted keys, e.g.
// {"generationConfig":{"temperature":0.2},"safetySettings":[]}
func renderOptions(options map[string]any) string {
	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		b.Write(k)
		b.WriteByte(':')
		b.WriteString(renderValue(options[key]))
	}
	b.WriteByte('}')
	return b.String()
}

// renderValue falls back to Go syntax for values encoding/json rejects, so
// such options still contribute to the fingerprint.
func renderValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(data)
}
