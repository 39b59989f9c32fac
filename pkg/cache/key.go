package cache

import "strings"

// KeyPrefix namespaces every key the manager writes.
const KeyPrefix = "gemini_mind"

// Key returns the namespaced Redis key for a fingerprint.
// Format: gemini_mind:<fingerprint>
func Key(fingerprint string) string {
	return KeyPrefix + ":" + fingerprint
}

// Fingerprint strips the namespace from a Redis key. The second result is
// false when key does not belong to this namespace.
func Fingerprint(key string) (string, bool) {
	return strings.CutPrefix(key, KeyPrefix+":")
}

// keyPattern matches every key in the namespace for SCAN.
func keyPattern() string {
	return KeyPrefix + ":*"
}
