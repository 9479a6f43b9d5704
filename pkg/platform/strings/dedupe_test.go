package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	assert.Equal(t, []string{"foo", "bar"}, DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "}))
	assert.Equal(t, []string{"Foo", "foo"}, DedupeAndTrim([]string{"Foo", "foo"}))
	assert.Empty(t, DedupeAndTrim(nil))
}

func TestNormalizeSet(t *testing.T) {
	t.Run("sorts and folds case", func(t *testing.T) {
		got := NormalizeSet([]string{" Research", "analytics", "RESEARCH"})
		assert.Equal(t, []string{"analytics", "research"}, got)
	})

	t.Run("order of input does not matter", func(t *testing.T) {
		a := NormalizeSet([]string{"b", "a", "c"})
		b := NormalizeSet([]string{"c", "B", " a "})
		assert.Equal(t, a, b)
	})

	t.Run("empty input yields empty non-nil slice", func(t *testing.T) {
		got := NormalizeSet(nil)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"read", "aggregate"}, SplitCSV("Read, aggregate,,READ "))
}
