package masking

import "testing"

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		name  string
		email string
		query string
		want  string
	}{
		{"present in query", "alice@example.com", "contact alice@example.com please", "alice@example.com"},
		{"case-insensitive match", "Alice@Example.com", "ALICE@EXAMPLE.COM issue", "Alice@Example.com"},
		{"masked with tld", "bob@example.com", "what's my order", "b***@***.com"},
		{"masked no tld", "bob@localhost", "what's my order", "b***@***"},
		{"no at sign", "bob", "hi", "***"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := MaskEmail(c.email, c.query)
			if got != c.want {
				t.Errorf("MaskEmail(%q,%q) = %q, want %q", c.email, c.query, got, c.want)
			}
		})
	}
}

func TestDeriveName(t *testing.T) {
	cases := []struct {
		id         string
		first, last string
	}{
		{"jane.doe@example.com", "Jane", "Doe"},
		{"john_smith@example.com", "John", "Smith"},
		{"alice@example.com", "Alice", ""},
		{"bob-jones+tag@example.com", "Bob", "Tag"},
	}
	for _, c := range cases {
		first, last := DeriveName(c.id)
		if first != c.first || last != c.last {
			t.Errorf("DeriveName(%q) = (%q,%q), want (%q,%q)", c.id, first, last, c.first, c.last)
		}
	}
}
