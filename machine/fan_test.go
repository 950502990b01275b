package machine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGPIOFan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value")
	fan := GPIOFan{Path: path}

	require.NoError(t, fan.SetFan(true))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(data))

	require.NoError(t, fan.SetFan(false))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0\n", string(data))

	assert.Error(t, GPIOFan{Path: filepath.Join(path, "nope")}.SetFan(true))
	assert.NoError(t, NopFan{}.SetFan(true))
}
