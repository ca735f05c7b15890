// Package masking redacts PII in retrieved rows unless the user already
// supplied it, and derives a display name from an email-like user id.
package masking

import (
	"fmt"
	"strings"
)

// MaskEmail returns email unchanged if it (case-insensitively) appears in
// query; otherwise it returns "<first-char>***@***.<tld>" when a TLD can be
// extracted, or "<first-char>***@***" otherwise. A value with no '@' is
// masked to the literal "***"; an empty email is returned as is.
func MaskEmail(email, query string) string {
	if email == "" {
		return email
	}
	if query != "" && strings.Contains(strings.ToLower(query), strings.ToLower(email)) {
		return email
	}

	first := email[:1]
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return "***"
	}

	domain := email[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	if dot < 0 || dot == len(domain)-1 {
		return fmt.Sprintf("%s***@***", first)
	}
	tld := domain[dot+1:]
	return fmt.Sprintf("%s***@***.%s", first, tld)
}

// DeriveName splits the local-part of an email-like id on '.', '_', '-',
// '+', title-cases each token, and returns (first, last): first is the
// first token, last is the final token. last is empty when only one token
// is present.
func DeriveName(userID string) (first, last string) {
	local := userID
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}

	tokens := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	tokens = titleCaseAll(tokens)

	switch len(tokens) {
	case 0:
		return "", ""
	case 1:
		return tokens[0], ""
	default:
		return tokens[0], tokens[len(tokens)-1]
	}
}

func titleCaseAll(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		out = append(out, strings.ToUpper(t[:1])+strings.ToLower(t[1:]))
	}
	return out
}
