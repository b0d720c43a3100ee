// Package policy holds the campus rules shared by the client and the backend:
// which email domains may sign in and how a claimed name is matched against
// the local part of a campus address.
package policy

import (
	"regexp"
	"strings"
)

// DefaultDomains are the accepted campus email domains.
var DefaultDomains = []string{"yorku.ca", "my.yorku.ca"}

// AllowList matches email addresses against a fixed set of domain suffixes.
type AllowList struct {
	suffixes []string
}

func NewAllowList(domains ...string) AllowList {
	if len(domains) == 0 {
		domains = DefaultDomains
	}
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, "@")
		if d == "" {
			continue
		}
		out = append(out, "@"+d)
	}
	return AllowList{suffixes: out}
}

// Allows reports whether email ends in one of the accepted "@domain" suffixes.
// A bare "@domain" with no local part is rejected.
func (a AllowList) Allows(email string) bool {
	e := Normalize(email)
	for _, s := range a.suffixes {
		if strings.HasSuffix(e, s) && len(e) > len(s) {
			return true
		}
	}
	return false
}

func (a AllowList) Domains() []string {
	out := make([]string, len(a.suffixes))
	for i, s := range a.suffixes {
		out[i] = strings.TrimPrefix(s, "@")
	}
	return out
}

// Hint is the user-facing message for an address outside the list.
func (a AllowList) Hint() string {
	return "Must use a campus email (" + strings.Join(a.suffixes, " or ") + ")"
}

func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	partSep = regexp.MustCompile(`[._\-]`)
	digits  = regexp.MustCompile(`\d+`)
)

// NameParts splits the local part of email into lowercase letter-only parts.
//
//	john.smith@yorku.ca     -> [john smith]
//	js1234@yorku.ca         -> [js]
//	kartik.7777xyz@yorku.ca -> [kartik xyz]
func NameParts(email string) []string {
	e := Normalize(email)
	at := strings.LastIndex(e, "@")
	if at >= 0 {
		e = e[:at]
	}
	var out []string
	for _, p := range partSep.Split(e, -1) {
		p = digits.ReplaceAllString(p, "")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SuggestName builds a display name from the meaningful (3+ letter) parts of
// the email, or "" when nothing usable is found.
func SuggestName(email string) string {
	var words []string
	for _, p := range NameParts(email) {
		if len(p) >= 3 {
			words = append(words, strings.ToUpper(p[:1])+p[1:])
		}
	}
	return strings.Join(words, " ")
}

// MatchNameToEmail checks a claimed full name against the email. The first
// name must appear among the email parts; a matching surname upgrades the
// reason but is not required.
func MatchNameToEmail(name, email string) (bool, string) {
	words := strings.Fields(strings.ToLower(name))
	if len(words) == 0 {
		return false, "Invalid name provided"
	}
	parts := NameParts(email)
	if len(parts) == 0 {
		return false, "Could not extract name from email"
	}

	first := words[0]
	if !matchesAny(first, parts) {
		found := false
		for _, p := range parts {
			if len(p) >= 3 && (strings.Contains(p, first) || strings.Contains(first, p)) {
				found = true
				break
			}
		}
		if !found {
			return false, "First name not found in email. ID verification required."
		}
	}

	if len(words) > 1 && matchesAny(words[len(words)-1], parts) {
		return true, "Full name verified from email"
	}
	return true, "First name verified from email"
}

func matchesAny(word string, parts []string) bool {
	for _, p := range parts {
		if len(p) < 2 {
			continue
		}
		if word == p || strings.HasPrefix(word, p) || strings.HasPrefix(p, word) {
			return true
		}
	}
	return false
}

var nameChars = regexp.MustCompile(`^[a-zA-Z\s\-']+$`)

// CleanName collapses whitespace and reports whether the result is a
// plausible personal name (2-100 letters, spaces, hyphens, apostrophes).
func CleanName(name string) (string, bool) {
	cleaned := strings.Join(strings.Fields(name), " ")
	if len(cleaned) < 2 || len(cleaned) > 100 {
		return cleaned, false
	}
	return cleaned, nameChars.MatchString(cleaned)
}

// SameFirstName reports whether two full names share the first name,
// ignoring case and punctuation. Used to compare a claimed name with the
// name read off an ID card.
func SameFirstName(a, b string) bool {
	fa, fb := firstWord(a), firstWord(b)
	return fa != "" && fa == fb
}

func firstWord(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if r == '-' || r == '\'' || r == '.' || r == ',' {
			return ' '
		}
		return r
	}, s)
	w := strings.Fields(s)
	if len(w) == 0 {
		return ""
	}
	return w[0]
}
