// Package jsonpath pulls a text field out of an arbitrary JSON response
// using a dot path like "result.segments[0].text". Cloud transcription
// APIs disagree about where the transcript lives; the path is config.
package jsonpath

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExtractText returns the transcript contained in body. The configured
// path is tried first; failing that, a top-level "text" key, then the
// first non-empty top-level string. Returns "" when nothing matches.
func ExtractText(body []byte, path string) string {
	var root interface{}
	if err := json.Unmarshal(body, &root); err != nil {
		return ""
	}

	if path != "" {
		if v, ok := Lookup(root, path); ok {
			return v
		}
	}

	m, ok := root.(map[string]interface{})
	if !ok {
		return ""
	}
	if v, exists := m["text"]; exists {
		if s, ok := stringify(v); ok {
			return s
		}
	}
	for _, val := range m {
		if s, ok := val.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Lookup walks a JSON-decoded value along a dot-separated path with
// optional array indexes and returns the leaf as a string.
func Lookup(root interface{}, path string) (string, bool) {
	if path == "" {
		return "", false
	}
	cur := root
	for _, token := range strings.Split(path, ".") {
		key, idxs, err := splitToken(token)
		if err != nil {
			return "", false
		}
		if key != "" {
			m, ok := cur.(map[string]interface{})
			if !ok {
				return "", false
			}
			next, exists := m[key]
			if !exists {
				return "", false
			}
			cur = next
		}
		for _, idx := range idxs {
			arr, ok := cur.([]interface{})
			if !ok || idx < 0 || idx >= len(arr) {
				return "", false
			}
			cur = arr[idx]
		}
	}
	return stringify(cur)
}

// stringify renders JSON scalars. Whole floats print as integers so
// numeric ids survive the round trip.
func stringify(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10), true
		}
		return fmt.Sprintf("%v", t), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// splitToken parses one path token like "segments[0][2]" or "[1]" into
// its map key (may be empty) and array indexes.
func splitToken(token string) (string, []int, error) {
	if token == "" {
		return "", nil, fmt.Errorf("empty path token")
	}
	br := strings.Index(token, "[")
	if br == -1 {
		return token, nil, nil
	}
	key := token[:br]
	rest := token[br:]
	var idxs []int
	for len(rest) > 0 {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("invalid index syntax in %s", token)
		}
		end := strings.Index(rest, "]")
		if end == -1 {
			return "", nil, fmt.Errorf("missing closing ] in %s", token)
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, fmt.Errorf("invalid index '%s' in %s", rest[1:end], token)
		}
		idxs = append(idxs, n)
		rest = rest[end+1:]
	}
	return key, idxs, nil
}
