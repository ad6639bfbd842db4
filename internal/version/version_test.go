package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	Version, Commit, BuildDate = "v1.2.0", "abc123", "2024-05-01"
	t.Cleanup(func() { Version, Commit, BuildDate = "dev", "unknown", "unknown" })

	assert.Equal(t, "tokenalerts v1.2.0 (commit abc123, built 2024-05-01)", String())
}
