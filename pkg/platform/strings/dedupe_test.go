package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"blank", "  ", nil},
		{"single", "a", []string{"a"}},
		{"trims and dedupes", " a , b,,a ,c", []string{"a", "b", "c"}},
		{"only separators", ",,,", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitList(tt.in, ","))
		})
	}
}
