package core

// extract.go holds the heuristics that pull list values, emails and phone
// numbers out of free-form cell text.

import (
	"regexp"
	"strings"
)

// MinPhoneDigits is the fewest digits a value needs to count as a phone.
const MinPhoneDigits = 7

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	emailExact   = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
)

// splitList splits a multi-valued cell. A pipe anywhere in the text makes it
// the only separator; otherwise commas, semicolons and line breaks separate.
// Values are trimmed and empties dropped.
func splitList(s string) []string {
	var parts []string
	if strings.Contains(s, "|") {
		parts = strings.Split(s, "|")
	} else {
		parts = strings.FieldsFunc(s, func(r rune) bool {
			return r == ',' || r == ';' || r == '\n' || r == '\r'
		})
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// dedupeFold keeps the first occurrence of each value, comparing
// case-insensitively.
func dedupeFold(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		k := strings.ToLower(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

func dedupeExact(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func isEmail(s string) bool {
	return emailExact.MatchString(s)
}

// extractEmails returns every email-shaped substring of text, lower-cased and
// de-duplicated, in order of appearance.
func extractEmails(text string) []string {
	found := emailPattern.FindAllString(text, -1)
	for i, e := range found {
		found[i] = strings.ToLower(strings.Trim(e, "."))
	}
	return dedupeExact(found)
}

// explicitEmails returns the valid addresses of a split email cell.
func explicitEmails(text string) []string {
	var out []string
	for _, v := range splitList(text) {
		v = strings.ToLower(v)
		if isEmail(v) {
			out = append(out, v)
		}
	}
	return dedupeExact(out)
}

// mergeEmails appends extracted addresses not already present.
func mergeEmails(explicit, extracted []string) []string {
	out := append([]string(nil), explicit...)
	seen := make(map[string]bool, len(out))
	for _, e := range out {
		seen[strings.ToLower(e)] = true
	}
	for _, e := range extracted {
		if !seen[strings.ToLower(e)] {
			seen[strings.ToLower(e)] = true
			out = append(out, e)
		}
	}
	return out
}

// digitsOf returns only the ASCII digits of s.
func digitsOf(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isPhone reports whether s has enough digits to be a phone number.
func isPhone(s string) bool {
	return len(digitsOf(s)) >= MinPhoneDigits
}

// explicitPhones returns the phone-like values of a split phone cell,
// keeping their original formatting.
func explicitPhones(text string) []string {
	var out []string
	for _, v := range splitList(text) {
		if isPhone(v) {
			out = append(out, v)
		}
	}
	return dedupeExact(out)
}

// extractPhones splits text on line breaks and list separators and keeps the
// digits and '+' of each candidate with at least MinPhoneDigits digits.
func extractPhones(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ',' || r == ';' || r == '|'
	})

	var out []string
	for _, p := range parts {
		var b strings.Builder
		for _, r := range p {
			if (r >= '0' && r <= '9') || r == '+' {
				b.WriteRune(r)
			}
		}
		if c := b.String(); len(digitsOf(c)) >= MinPhoneDigits {
			out = append(out, c)
		}
	}
	return dedupeExact(out)
}

// mergePhones appends extracted numbers whose digits are not already present.
func mergePhones(explicit, extracted []string) []string {
	out := append([]string(nil), explicit...)
	seen := make(map[string]bool, len(out))
	for _, p := range out {
		seen[digitsOf(p)] = true
	}
	for _, p := range extracted {
		d := digitsOf(p)
		if !seen[d] {
			seen[d] = true
			out = append(out, p)
		}
	}
	return out
}

// putFirst moves primary to the front of list, dropping any other entry with
// the same identity.
func putFirst(list []string, primary string, ident func(string) string) []string {
	if primary == "" {
		return list
	}
	id := ident(primary)
	out := make([]string, 0, len(list)+1)
	out = append(out, primary)
	for _, v := range list {
		if ident(v) != id {
			out = append(out, v)
		}
	}
	return out
}

// Multi-contact name separators, tried in order.
var nameSeparators = [][]string{
	{";", "|"},
	{" / "},
	{" & "},
}

// splitNames splits a display name holding several people. It returns nil
// when no separator class yields more than one non-empty part.
func splitNames(name string) []string {
	for _, class := range nameSeparators {
		parts := []string{name}
		for _, sep := range class {
			var next []string
			for _, p := range parts {
				next = append(next, strings.Split(p, sep)...)
			}
			parts = next
		}

		var out []string
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 1 {
			return out
		}
	}
	return nil
}
