package zim

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_BadMagic(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "bad-*.zim")
	require.NoError(t, err)
	_, err = f.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(f.Name())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrBadMagic))
}

func TestOpen_MinimalArchive(t *testing.T) {
	entries := []fixtureEntry{
		{namespace: 'A', url: "Cat", title: "Cat", mimeCode: 0, blob: []byte("meow")},
	}
	clusters := [][][]byte{{[]byte("meow")}}
	a := buildArchive(t, entries, clusters, []string{"text/html"})
	defer a.Close()

	require.EqualValues(t, 1, a.ArticleCount())
	require.EqualValues(t, 1, a.ClusterCount())
	require.Equal(t, []string{"text/html"}, a.MimeList())
}

func TestOpen_UnexpectedVersionStillOpens(t *testing.T) {
	require.False(t, knownMajorVersion(99))
	entries := []fixtureEntry{{namespace: 'A', url: "X", title: "X", mimeCode: 0}}
	path := writeArchiveFile(t, entries, [][][]byte{{[]byte("x")}}, []string{"text/plain"}, compressionNone, nil)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	copy(raw[4:6], le16(99)) // major version
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()
	require.EqualValues(t, 1, a.ArticleCount())
}
