package identity

import "strings"

// CleanPhone strips formatting from a phone-like key and returns it in
// +<country><number> form. Ten-digit numbers gain a leading 1. Keys
// with no digits at all come back unchanged.
func CleanPhone(raw string) string {
	digits := digitsOnly(raw)
	if digits == "" {
		return raw
	}
	if len(digits) == 10 {
		digits = "1" + digits
	}
	return "+" + digits
}

// NormalizeEmail lower-cases and trims an email-like key.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Normalize prepares a raw key for comparison: phones lose everything
// but digits (and gain a country code), emails are lower-cased and
// trimmed, opaque ids pass through untouched.
func Normalize(raw string) string {
	switch {
	case IsEmail(raw):
		return NormalizeEmail(raw)
	case IsPhoneLike(raw):
		return CleanPhone(raw)
	default:
		return raw
	}
}

// IsEmail reports whether the key looks like an email address.
func IsEmail(raw string) bool {
	return strings.Contains(raw, "@")
}

// IsPhoneLike reports whether the key is a phone number once common
// separators are ignored.
func IsPhoneLike(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if strings.HasPrefix(raw, "+") {
		return true
	}
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '-', '(', ')', ' ', '.':
			return -1
		}
		return r
	}, raw)
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Variants lists the key forms a phone number may have been recorded
// under. Archives are inconsistent about country codes and plus signs,
// so lookups try every observed spelling.
func Variants(raw string) []string {
	variants := []string{raw}
	if IsEmail(raw) {
		if norm := NormalizeEmail(raw); norm != raw {
			variants = append(variants, norm)
		}
		return variants
	}

	digits := digitsOnly(raw)
	if digits == "" {
		return variants
	}
	if len(digits) == 10 {
		digits = "1" + digits
	}
	variants = append(variants, digits, "+"+digits)
	if len(digits) >= 10 {
		last10 := digits[len(digits)-10:]
		variants = append(variants, "+1"+last10, last10)
	}
	return dedupe(variants)
}

// IsResolvedName reports whether a contact name is an actual resolved
// name rather than a formatted raw key still awaiting resolution.
func IsResolvedName(name string) bool {
	if name == "" {
		return false
	}
	if strings.HasPrefix(name, "+") || strings.HasPrefix(name, groupKeyPrefix) {
		return false
	}
	return !strings.Contains(name, "@")
}

// DisplayFallback formats a raw key for display when no source could
// resolve a name.
func DisplayFallback(raw string) string {
	switch {
	case IsEmail(raw):
		return NormalizeEmail(raw)
	case IsPhoneLike(raw):
		return CleanPhone(raw)
	default:
		return raw
	}
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func dedupe(values []string) []string {
	seen := map[string]struct{}{}
	out := values[:0]
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
