package generate

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomID(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Za-z0-9]{6}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := RoomID()

		require.Regexp(t, pattern, id)
		seen[id] = true
	}

	// Then: ids are not all identical
	assert.Greater(t, len(seen), 1)
}

func TestToken(t *testing.T) {
	first := Token()
	second := Token()

	require.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
