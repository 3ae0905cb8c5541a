package strutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanList(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil stays nil", input: nil, expected: nil},
		{name: "empty stays empty", input: []string{}, expected: []string{}},
		{name: "broker list with stray spaces", input: []string{" kafka-1:9092", "kafka-2:9092 "}, expected: []string{"kafka-1:9092", "kafka-2:9092"}},
		{name: "blanks from a trailing comma", input: []string{"kafka-1:9092", "", "  "}, expected: []string{"kafka-1:9092"}},
		{name: "duplicates keep first position", input: []string{"b", "a", "b", " a"}, expected: []string{"b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanList(tt.input))
		})
	}
}
