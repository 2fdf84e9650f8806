package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_TTLAndPurge(t *testing.T) {
	c, err := NewCache[int](2)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Minute)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok, "expired entries are dropped")

	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)
	c.Set("d", 4, time.Minute)
	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")

	c.Delete("c")
	_, ok = c.Get("c")
	assert.False(t, ok)

	c.Purge()
	_, ok = c.Get("d")
	assert.False(t, ok)
}

func TestNewCache_InvalidSize(t *testing.T) {
	_, err := NewCache[string](0)
	assert.Error(t, err)
}

func TestIsDigits(t *testing.T) {
	assert.True(t, IsDigits("42"))
	assert.True(t, IsDigits("007"))
	assert.False(t, IsDigits(""))
	assert.False(t, IsDigits("-1"))
	assert.False(t, IsDigits("1a"))
	assert.False(t, IsDigits("١٢"), "only ASCII digits")
}

func TestHasMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"if a<b then", false},
		{"<not a tag", false},
		{"5 &lt; 6", false},
		{"a > b and c < d", false},
		{"x < y > z", false},
		{"a->b<-c", false},
		{`say "hello" & 'bye'`, false},
		{"line one\r\nline > two", false},
		{"&foo; > 1", false},
		{"<b>hi</b>", true},
		{"hello <script>alert(1)</script>", true},
		{"<p></p>", true},
		{"see <a href=\"/x\">this</a>", true},
		{"<!-- hidden -->", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HasMarkup(tt.in), tt.in)
	}
}
