//go:build linux

package resource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgramRSS(t *testing.T) {
	self := filepath.Base(os.Args[0])
	total, err := ProgramRSS(self)
	require.NoError(t, err)
	assert.Positive(t, total)

	none, err := ProgramRSS("no-such-program-7f3a9c")
	require.NoError(t, err)
	assert.Zero(t, none)

	_, err = ProgramRSS("")
	assert.Error(t, err)
}

func TestCurrentRSSFollowsAllocations(t *testing.T) {
	before, err := CurrentRSS()
	require.NoError(t, err)

	buf := make([]byte, 64<<20)
	for i := range buf {
		buf[i] = byte(i)
	}
	after, err := CurrentRSS()
	require.NoError(t, err)
	assert.Greater(t, after, before)
	assert.Equal(t, byte(255), buf[255])
}
