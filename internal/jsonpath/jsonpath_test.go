package jsonpath

import "testing"

func TestLookup(t *testing.T) {
	root := map[string]interface{}{
		"text": "hello",
		"result": map[string]interface{}{
			"segments": []interface{}{
				map[string]interface{}{"text": "first"},
				map[string]interface{}{"text": "second"},
			},
		},
		"alternatives": []interface{}{
			[]interface{}{
				map[string]interface{}{"transcript": "nested"},
			},
		},
	}

	if v, ok := Lookup(root, "result.segments[1].text"); !ok || v != "second" {
		t.Fatalf("expected second, got %v (ok=%v)", v, ok)
	}
	if v, ok := Lookup(root, "alternatives[0][0].transcript"); !ok || v != "nested" {
		t.Fatalf("expected nested, got %v (ok=%v)", v, ok)
	}
	if _, ok := Lookup(root, "result.segments[5].text"); ok {
		t.Fatalf("expected out-of-range index to miss")
	}
	if _, ok := Lookup(root, "missing.key"); ok {
		t.Fatalf("expected missing key to miss")
	}
}

func TestLookupScalars(t *testing.T) {
	root := map[string]interface{}{
		"count": float64(7),
		"ratio": 0.5,
		"done":  true,
	}
	if v, ok := Lookup(root, "count"); !ok || v != "7" {
		t.Fatalf("expected 7, got %v (ok=%v)", v, ok)
	}
	if v, ok := Lookup(root, "ratio"); !ok || v != "0.5" {
		t.Fatalf("expected 0.5, got %v (ok=%v)", v, ok)
	}
	if v, ok := Lookup(root, "done"); !ok || v != "true" {
		t.Fatalf("expected true, got %v (ok=%v)", v, ok)
	}
}

func TestExtractText(t *testing.T) {
	body := []byte(`{"result":{"text":" transcript "},"status":"ok"}`)
	if v := ExtractText(body, "result.text"); v != " transcript " {
		t.Fatalf("unexpected path extract: %q", v)
	}

	// Falls back to the top-level "text" key when the path misses.
	body = []byte(`{"text":"plain"}`)
	if v := ExtractText(body, "nope.nope"); v != "plain" {
		t.Fatalf("unexpected fallback extract: %q", v)
	}

	if v := ExtractText([]byte(`not json`), "text"); v != "" {
		t.Fatalf("expected empty for invalid JSON, got %q", v)
	}
}

func TestSplitToken(t *testing.T) {
	key, idxs, err := splitToken("segments[0][3]")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if key != "segments" || len(idxs) != 2 || idxs[0] != 0 || idxs[1] != 3 {
		t.Fatalf("unexpected parse: key=%s idxs=%v", key, idxs)
	}

	if _, _, err := splitToken("foo[1"); err == nil {
		t.Fatalf("expected error for unclosed bracket")
	}
	if _, _, err := splitToken("foo[x]"); err == nil {
		t.Fatalf("expected error for non-numeric index")
	}
}
