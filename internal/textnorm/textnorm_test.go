package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bright Lights Co", "bright lights co"},
		{"  BRIGHT   lights co ", "bright lights co"},
		{"Café Lumière", "cafe lumiere"},
		{"Lowe's Home-Improvement", "lowe s home improvement"},
		{"A&B Lighting, LLC.", "a b lighting llc"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Name(tt.in), "Name(%q)", tt.in)
	}
}

func TestPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"555-0100", "5550100"},
		{"(217) 555-0100", "2175550100"},
		{"+1 217-555-0100", "2175550100"},
		{"1 (217) 555 0100", "2175550100"},
		{"12345678901", "2345678901"},
		{"22175550100", "22175550100"},
		{"", ""},
		{"n/a", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Phone(tt.in), "Phone(%q)", tt.in)
	}
}
