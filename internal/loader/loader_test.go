package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticLoaderLoad(t *testing.T) {
	l := NewStaticLoader(map[string]Image{
		"init": {Name: "init", EntryPoint: 0x1000, StackTop: 0x2000},
	})

	img, err := l.Load("init")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000), img.EntryPoint)
	assert.Equal(t, uint64(0x2000), img.StackTop)
}

func TestStaticLoaderUnknown(t *testing.T) {
	l := NewStaticLoader(nil)
	_, err := l.Load("missing")
	assert.Error(t, err)
}
