package publish

import (
	"errors"
	"testing"

	rerrors "github.com/alxayo/rtmp-publish/internal/errors"
)

func TestParseServerURL_Happy(t *testing.T) {
	// S1: explicit scheme, explicit port.
	tgt, err := parseServerURL("rtmp://a.example.com:1935/live/key1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tgt.host != "a.example.com" || tgt.port != "1935" || tgt.app != "live" || tgt.playPath != "key1" {
		t.Fatalf("unexpected target: %+v", tgt)
	}
}

func TestParseServerURL_ImplicitScheme(t *testing.T) {
	// S2: implicit scheme, default port.
	tgt, err := parseServerURL("a.example.com/live/key1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tgt.host != "a.example.com" || tgt.port != defaultPort || tgt.app != "live" || tgt.playPath != "key1" {
		t.Fatalf("unexpected target: %+v", tgt)
	}
}

func TestParseServerURL_HTTPSchemeNormalised(t *testing.T) {
	tgt, err := parseServerURL("http://a.example.com/live/key1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tgt.host != "a.example.com" || tgt.app != "live" || tgt.playPath != "key1" {
		t.Fatalf("unexpected target: %+v", tgt)
	}

	tgt2, err := parseServerURL("https://a.example.com/live/key1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tgt2.host != "a.example.com" {
		t.Fatalf("unexpected target: %+v", tgt2)
	}
}

func TestParseServerURL_BadPath(t *testing.T) {
	// S3: missing playPath segment.
	_, err := parseServerURL("rtmp://a.example.com/live")
	if err == nil {
		t.Fatalf("expected BadUrl error, got nil")
	}
	if !rerrors.IsClientError(err) {
		t.Fatalf("expected a client error, got %v", err)
	}
	var ue *rerrors.UrlError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *errors.UrlError, got %T", err)
	}
}

func TestParseServerURL_UnsupportedScheme(t *testing.T) {
	_, err := parseServerURL("rtmps://a.example.com/live/key1")
	if err == nil {
		t.Fatalf("expected error for rtmps scheme")
	}
}

func TestParseServerURL_EmptyHost(t *testing.T) {
	_, err := parseServerURL("rtmp:///live/key1")
	if err == nil {
		t.Fatalf("expected error for empty host")
	}
}

func TestParseServerURL_RoundTrip(t *testing.T) {
	cases := []struct {
		host, port, app, play string
	}{
		{"a.example.com", "1935", "live", "key1"},
		{"10.0.0.1", "1936", "app", "stream-key_123"},
		{"cdn.example.org", "80", "live2", "abcXYZ789"},
	}
	for _, c := range cases {
		raw := formatServerURL(c.host, c.port, c.app, c.play)
		tgt, err := parseServerURL(raw)
		if err != nil {
			t.Fatalf("parse(format(%+v)) failed: %v", c, err)
		}
		if tgt.host != c.host || tgt.port != c.port || tgt.app != c.app || tgt.playPath != c.play {
			t.Fatalf("round-trip mismatch for %+v: got %+v (raw=%s)", c, tgt, raw)
		}
	}
}
