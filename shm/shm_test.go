package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameIsDeterministic(t *testing.T) {
	n1 := Name("/tmp/shmipc.sock", 3, 0xdead, TX)
	n2 := Name("/tmp/shmipc.sock", 3, 0xdead, TX)
	assert.Equal(t, n1, n2)
}

func TestNameDiffersByDirection(t *testing.T) {
	tx := Name("base", 1, 42, TX)
	rx := Name("base", 1, 42, RX)
	assert.NotEqual(t, tx, rx)
}

func TestNameSanitizesPathSeparators(t *testing.T) {
	n := Name("/tmp/shmipc.sock", 1, 1, TX)
	assert.NotContains(t, n, "/")
	assert.NotContains(t, n, "\\")
}

func TestNameFallsBackOnEmptyBase(t *testing.T) {
	n := Name("", 0, 0, TX)
	assert.Contains(t, n, "shmipc")
}
