package pathguard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentbroker/broker/internal/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBasic(t *testing.T) {
	base := t.TempDir()
	cwd, err := Resolve(base, "alice", "", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "alice"), cwd)
}

func TestResolveWithSubdir(t *testing.T) {
	base := t.TempDir()
	cwd, err := Resolve(base, "alice", "project1", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "alice", "project1"), cwd)
}

func TestResolveRejectsInvalidUserID(t *testing.T) {
	base := t.TempDir()
	_, err := Resolve(base, "alice/../bob", "", false)
	require.Error(t, err)
	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindInvalidInput, e.Kind)
}

func TestResolveRejectsTraversalSubdir(t *testing.T) {
	base := t.TempDir()
	_, err := Resolve(base, "bob", "../etc", false)
	require.Error(t, err)
	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindInvalidInput, e.Kind)
}

func TestResolveRejectsAbsoluteSubdir(t *testing.T) {
	base := t.TempDir()
	_, err := Resolve(base, "bob", "/etc/passwd", false)
	require.Error(t, err)
	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindInvalidInput, e.Kind)
}

func TestResolveAutoCreateDir(t *testing.T) {
	base := t.TempDir()
	cwd, err := Resolve(base, "carol", "nested/deep", true)
	require.NoError(t, err)
	info, err := os.Stat(cwd)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestResolveAutoCreateDirIdempotent(t *testing.T) {
	base := t.TempDir()
	_, err := Resolve(base, "dave", "", true)
	require.NoError(t, err)
	_, err = Resolve(base, "dave", "", true)
	require.NoError(t, err)
}

func TestResolveAddDir(t *testing.T) {
	base := t.TempDir()
	cwd, err := Resolve(base, "erin", "", false)
	require.NoError(t, err)

	dir, err := ResolveAddDir(cwd, "libs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "libs"), dir)
}

func TestResolveAddDirRejectsEscape(t *testing.T) {
	base := t.TempDir()
	cwd, err := Resolve(base, "frank", "", false)
	require.NoError(t, err)

	_, err = ResolveAddDir(cwd, "../../escape")
	require.Error(t, err)
	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindInvalidInput, e.Kind)
}

func TestResolveAddDirRejectsAbsolute(t *testing.T) {
	base := t.TempDir()
	cwd, err := Resolve(base, "gina", "", false)
	require.NoError(t, err)

	_, err = ResolveAddDir(cwd, "/etc")
	require.Error(t, err)
}
