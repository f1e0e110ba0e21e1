package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	defer func(v, c, d string) {
		Version, Commit, Date = v, c, d
	}(Version, Commit, Date)

	t.Run("prefers ldflags values", func(t *testing.T) {
		Version, Commit, Date = "v1.2.3", "abc123", "2026-01-01"
		v, c, d := Resolve()
		assert.Equal(t, "v1.2.3", v)
		assert.Equal(t, "abc123", c)
		assert.Equal(t, "2026-01-01", d)
	})

	t.Run("shortens full commit hashes", func(t *testing.T) {
		Version, Commit, Date = "v1.2.3", strings.Repeat("a", 40), "2026-01-01"
		_, c, _ := Resolve()
		assert.Equal(t, strings.Repeat("a", 12), c)
	})

	t.Run("never returns empty fields", func(t *testing.T) {
		Version, Commit, Date = "", "", ""
		v, c, d := Resolve()
		assert.NotEmpty(t, v)
		assert.NotEmpty(t, c)
		assert.NotEmpty(t, d)
	})
}
