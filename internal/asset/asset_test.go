package asset

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towsim/pushback/pkg/core"
)

func newTestService(t *testing.T) *FileService {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/plugin/objects/White.obj", []byte("OBJ 800\n"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/plugin/objects/empty.obj", nil, 0644))
	return NewFileService(fs, "/plugin", nil)
}

func TestFileService_Load(t *testing.T) {
	s := newTestService(t)

	h, err := s.Load("objects/White.obj")
	require.NoError(t, err)
	assert.NotZero(t, h)
	assert.Equal(t, 1, s.Loaded())

	h2, err := s.Load("objects/White.obj")
	require.NoError(t, err)
	assert.NotEqual(t, h, h2, "each load gets its own handle")
}

func TestFileService_LoadMissing(t *testing.T) {
	s := newTestService(t)

	_, err := s.Load("objects/Missing.obj")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Load("objects/empty.obj")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Load("objects")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Loaded())
}

func TestFileService_DrawAndUnload(t *testing.T) {
	s := newTestService(t)
	h, err := s.Load("objects/White.obj")
	require.NoError(t, err)

	pose := core.RenderPose{Pos: r3.Vector{X: 1, Y: 2, Z: 3}, Hdg: 90}
	require.NoError(t, s.Draw(h, pose))
	require.NoError(t, s.Draw(h, pose))

	n, last, ok := s.Draws(h)
	require.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Equal(t, pose, last)

	require.NoError(t, s.Unload(h))
	assert.Equal(t, 0, s.Loaded())

	assert.ErrorIs(t, s.Unload(h), ErrUnknownHandle)
	assert.ErrorIs(t, s.Draw(h, pose), ErrUnknownHandle)
}
