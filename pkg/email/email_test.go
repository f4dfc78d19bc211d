package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "", true},
		{"   ", "", true},
		{" Asha.K@Example.IN ", "Asha.K@example.in", true},
		{"ops+fuel@dealers.co.in", "ops+fuel@dealers.co.in", true},
		{"no-at-sign", "", false},
		{"user@localhost", "", false},
		{"Asha <asha@example.in>", "", false},
		{"a@b@c.in", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Normalize(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
