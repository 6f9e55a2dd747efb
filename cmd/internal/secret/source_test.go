package secret

import (
	"errors"
	"testing"
)

func newTestSource(env map[string]string, prompt bool) *Source {
	src := NewSource("POT_TEST_SECRET", prompt)
	src.lookup = func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}
	src.stdin = nil
	return src
}

func TestSourceReadsEnvironment(t *testing.T) {
	src := newTestSource(map[string]string{"POT_TEST_SECRET": "  s3cret "}, false)
	value, err := src.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != "s3cret" {
		t.Fatalf("unexpected secret %q", value)
	}
}

func TestSourceRejectsEmptyValue(t *testing.T) {
	src := newTestSource(map[string]string{"POT_TEST_SECRET": "   "}, false)
	if _, err := src.Get(); err == nil {
		t.Fatalf("expected empty secret error")
	}
}

func TestSourceUnavailableWithoutTerminal(t *testing.T) {
	src := newTestSource(nil, true)
	if _, err := src.Get(); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
