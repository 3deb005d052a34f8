package locale

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Locale is a validated locale code in wire form (lowercase, "_" separated).
type Locale string

var known = map[Locale]struct{}{
	"cs":    {},
	"de":    {},
	"en":    {},
	"es":    {},
	"fr":    {},
	"it":    {},
	"ja":    {},
	"ko":    {},
	"pl":    {},
	"pt_br": {},
	"zh_cn": {},
	"zh_tw": {},
}

// Parse validates raw against the supported locale set.
func Parse(raw string) (Locale, error) {
	tag := NormalizeTag(raw)
	if tag == "" {
		return "", fmt.Errorf("%q is not a valid locale code/syntax", raw)
	}
	loc := Locale(tag)
	if _, ok := known[loc]; !ok {
		return "", fmt.Errorf("%s is not a valid locale code/syntax", tag)
	}
	return loc, nil
}

// MustParse is Parse for compile-time constants.
func MustParse(raw string) Locale {
	loc, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return loc
}

// Codes returns all supported locale codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(known))
	for code := range known {
		codes = append(codes, string(code))
	}
	sort.Strings(codes)
	return codes
}

func (l Locale) String() string {
	return string(l)
}

// Language returns the primary language subtag (for example, "zh" from "zh_tw").
func (l Locale) Language() string {
	tag := string(l)
	if sep := strings.IndexByte(tag, '_'); sep >= 0 {
		return tag[:sep]
	}
	return tag
}

func (l *Locale) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("locale must be a string: %w", err)
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// NormalizeTag normalizes a locale tag to lowercase and "_" separators.
// Returns an empty string when the value is blank or contains invalid characters.
func NormalizeTag(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ""
	}

	trimmed = strings.ReplaceAll(trimmed, "-", "_")
	parts := strings.Split(trimmed, "_")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !isAlphaLower(part) {
			return ""
		}
		normalized = append(normalized, part)
	}

	if len(normalized) == 0 {
		return ""
	}
	return strings.Join(normalized, "_")
}

// Pair is one supported source/target combination.
type Pair struct {
	Source Locale `json:"sourceLanguage"`
	Target Locale `json:"targetLanguage"`
}

// ParsePairs parses a comma separated "src:dst" list, dropping duplicates.
func ParsePairs(raw string) ([]Pair, error) {
	parts := strings.Split(raw, ",")
	pairs := make([]Pair, 0, len(parts))
	seen := make(map[Pair]struct{}, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		src, dst, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("language pair %q must be formatted as source:target", part)
		}
		source, err := Parse(src)
		if err != nil {
			return nil, fmt.Errorf("language pair %q: %w", part, err)
		}
		target, err := Parse(dst)
		if err != nil {
			return nil, fmt.Errorf("language pair %q: %w", part, err)
		}
		pair := Pair{Source: source, Target: target}
		if _, exists := seen[pair]; exists {
			continue
		}
		seen[pair] = struct{}{}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func isAlphaLower(value string) bool {
	for _, r := range value {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
