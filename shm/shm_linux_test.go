//go:build linux
// +build linux

package shm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateMapUnlinkRoundTrip(t *testing.T) {
	name := Name("shm-test", 1, 0xc0ffee, TX)
	defer Unlink(name)

	obj, err := Create(name, 4096, true)
	require.NoError(t, err)
	defer obj.Close()

	require.Len(t, obj.Region, 4096)

	obj.Region[0] = 0xAB

	reopened, err := Create(name, 4096, false)
	require.NoError(t, err)
	defer reopened.Close()

	require.EqualValues(t, 0xAB, reopened.Region[0])
}
