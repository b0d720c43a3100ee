package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowList(t *testing.T) {
	a := NewAllowList()

	cases := []struct {
		email string
		want  bool
	}{
		{"a@my.yorku.ca", true},
		{"john.smith@yorku.ca", true},
		{"  John.Smith@YorkU.ca ", true},
		{"a@gmail.com", false},
		{"a@yorku.ca.evil.com", false},
		{"a@notyorku.ca", false},
		{"@yorku.ca", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, a.Allows(tc.email), tc.email)
	}
	assert.Equal(t, "Must use a campus email (@yorku.ca or @my.yorku.ca)", a.Hint())
}

func TestAllowListCustomDomains(t *testing.T) {
	a := NewAllowList("@example.edu", " ", "Campus.ORG")
	assert.Equal(t, []string{"example.edu", "campus.org"}, a.Domains())
	assert.True(t, a.Allows("x@campus.org"))
	assert.False(t, a.Allows("x@yorku.ca"))
}

func TestNameParts(t *testing.T) {
	assert.Equal(t, []string{"john", "smith"}, NameParts("john.smith@yorku.ca"))
	assert.Equal(t, []string{"sarah", "m", "jones"}, NameParts("sarah.m.jones@my.yorku.ca"))
	assert.Equal(t, []string{"js"}, NameParts("js1234@yorku.ca"))
	assert.Equal(t, []string{"kartik", "xyz"}, NameParts("kartik.7777xyz@yorku.ca"))
	assert.Empty(t, NameParts("1234@yorku.ca"))
}

func TestSuggestName(t *testing.T) {
	assert.Equal(t, "John Smith", SuggestName("john.smith@yorku.ca"))
	assert.Equal(t, "Sarah Jones", SuggestName("sarah.m.jones@yorku.ca"))
	assert.Equal(t, "", SuggestName("js1234@yorku.ca"))
}

func TestMatchNameToEmail(t *testing.T) {
	cases := []struct {
		name, email string
		ok          bool
		reason      string
	}{
		{"John Smith", "john.smith@yorku.ca", true, "Full name verified from email"},
		{"John Smith", "john@yorku.ca", true, "First name verified from email"},
		{"John Smith", "js1234@yorku.ca", false, "First name not found in email. ID verification required."},
		{"Sarah Jones", "sarah.m.jones@yorku.ca", true, "Full name verified from email"},
		{"Kartikeya", "kartik.7777xyz@yorku.ca", true, "First name verified from email"},
		{"   ", "john@yorku.ca", false, "Invalid name provided"},
		{"John", "1234@yorku.ca", false, "Could not extract name from email"},
	}
	for _, tc := range cases {
		ok, reason := MatchNameToEmail(tc.name, tc.email)
		assert.Equal(t, tc.ok, ok, tc.name+" / "+tc.email)
		assert.Equal(t, tc.reason, reason, tc.name+" / "+tc.email)
	}
}

func TestCleanName(t *testing.T) {
	n, ok := CleanName("  Mary   O'Neil-Smith ")
	assert.True(t, ok)
	assert.Equal(t, "Mary O'Neil-Smith", n)

	_, ok = CleanName("R2D2")
	assert.False(t, ok)
	_, ok = CleanName("A")
	assert.False(t, ok)
}

func TestSameFirstName(t *testing.T) {
	assert.True(t, SameFirstName("John Smith", "JOHN A. SMITH"))
	assert.False(t, SameFirstName("John Smith", "Jane Smith"))
	assert.False(t, SameFirstName("", ""))
}
