package pastebin

import (
	"errors"
	"testing"

	"pbin/pkg/domain"
)

func TestResolvePrivacy_Names(t *testing.T) {
	want := map[string]string{"public": "0", "unlisted": "1", "private": "2"}
	for name, code := range want {
		got, err := ResolvePrivacy(name)
		if err != nil {
			t.Fatalf("ResolvePrivacy(%q) failed: %v", name, err)
		}
		if got != code {
			t.Errorf("ResolvePrivacy(%q) = %s, want %s", name, got, code)
		}
	}
}

func TestResolvePrivacy_Codes(t *testing.T) {
	for i := 0; i <= 2; i++ {
		got, err := ResolvePrivacy(i)
		if err != nil {
			t.Fatalf("ResolvePrivacy(%d) failed: %v", i, err)
		}
		if got != string(rune('0'+i)) {
			t.Errorf("ResolvePrivacy(%d) = %s", i, got)
		}
	}
	if got, err := ResolvePrivacy(Private); err != nil || got != "2" {
		t.Errorf("ResolvePrivacy(Private) = %s, %v", got, err)
	}
	if got, err := ResolvePrivacy(int64(0)); err != nil || got != "0" {
		t.Errorf("ResolvePrivacy(int64(0)) = %s, %v", got, err)
	}
	if got, err := ResolvePrivacy(uint64(1)); err != nil || got != "1" {
		t.Errorf("ResolvePrivacy(uint64(1)) = %s, %v", got, err)
	}
	if got, err := ResolvePrivacy(uintptr(2)); err != nil || got != "2" {
		t.Errorf("ResolvePrivacy(uintptr(2)) = %s, %v", got, err)
	}
}

func TestResolvePrivacy_Invalid(t *testing.T) {
	inputs := []any{"foo", 5, -1, nil, "1", "Public", 1.0, PrivacyLevel(3), uint64(3), uint64(1 << 63), uintptr(9)}
	for _, in := range inputs {
		_, err := ResolvePrivacy(in)
		if !errors.Is(err, domain.ErrInvalidOption) {
			t.Errorf("ResolvePrivacy(%#v) err = %v, want ErrInvalidOption", in, err)
			continue
		}
		var oe *domain.OptionError
		if !errors.As(err, &oe) || oe.Option != "privacy" || oe.Value != in {
			t.Errorf("ResolvePrivacy(%#v) did not carry the offending input: %v", in, err)
		}
	}
}

func TestResolveExpiration(t *testing.T) {
	for _, e := range expirations {
		got, err := ResolveExpiration(e.name)
		if err != nil || got != e.code {
			t.Errorf("ResolveExpiration(%q) = %s, %v; want %s", e.name, got, err, e.code)
		}
		got, err = ResolveExpiration(e.code)
		if err != nil || got != e.code {
			t.Errorf("ResolveExpiration(%q) = %s, %v; want unchanged", e.code, got, err)
		}
	}
}

func TestResolveExpiration_Invalid(t *testing.T) {
	for _, in := range []string{"", "forever", "10m", "2 days", "1 Hour"} {
		_, err := ResolveExpiration(in)
		if !errors.Is(err, domain.ErrInvalidOption) {
			t.Errorf("ResolveExpiration(%q) err = %v, want ErrInvalidOption", in, err)
		}
	}
}

func TestExpirationNames_Order(t *testing.T) {
	names := ExpirationNames()
	if len(names) != 9 {
		t.Fatalf("expected 9 expirations, got %d", len(names))
	}
	if names[0] != [2]string{"never", "N"} || names[8] != [2]string{"1 year", "1Y"} {
		t.Errorf("unexpected order: %v", names)
	}
	p := PrivacyNames()
	p[0] = "mutated"
	if PrivacyNames()[0] != "public" {
		t.Errorf("PrivacyNames returned shared slice")
	}
}
