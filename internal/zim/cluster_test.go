package zim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadBlob_ZstdCluster(t *testing.T) {
	entries := []fixtureEntry{
		{namespace: 'A', url: "One", title: "One", mimeCode: 0},
		{namespace: 'A', url: "Two", title: "Two", mimeCode: 0},
	}
	blobs := [][]byte{[]byte("first blob content"), []byte("second blob, a bit longer")}
	path := writeArchiveFile(t, entries, [][][]byte{blobs}, []string{"text/plain"}, compressionZstd, nil)
	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	data, err := a.readBlob(0, 0)
	require.NoError(t, err)
	require.Equal(t, "first blob content", string(data))

	data, err = a.readBlob(0, 1)
	require.NoError(t, err)
	require.Equal(t, "second blob, a bit longer", string(data))
}

func TestReadBlob_XZCluster(t *testing.T) {
	entries := []fixtureEntry{
		{namespace: 'A', url: "One", title: "One", mimeCode: 0},
		{namespace: 'A', url: "Two", title: "Two", mimeCode: 0},
	}
	blobs := [][]byte{[]byte("xz blob alpha"), []byte("xz blob beta, quite a bit longer than alpha")}
	path := writeArchiveFile(t, entries, [][][]byte{blobs}, []string{"text/plain"}, compressionXZ, nil)
	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	data, err := a.readBlob(0, 1)
	require.NoError(t, err)
	require.Equal(t, "xz blob beta, quite a bit longer than alpha", string(data))

	data, err = a.readBlob(0, 0)
	require.NoError(t, err)
	require.Equal(t, "xz blob alpha", string(data))
}

func TestReadBlob_ExtendedOffsetWidth(t *testing.T) {
	entries := []fixtureEntry{
		{namespace: 'A', url: "One", title: "One", mimeCode: 0},
	}
	blobs := [][]byte{[]byte("wide-offset content")}
	width := 8
	path := writeArchiveFile(t, entries, [][][]byte{blobs}, []string{"text/plain"}, compressionNone, &width)
	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	data, err := a.readBlob(0, 0)
	require.NoError(t, err)
	require.Equal(t, "wide-offset content", string(data))
}

func TestReadBlob_UnknownCompression(t *testing.T) {
	entries := []fixtureEntry{{namespace: 'A', url: "One", title: "One", mimeCode: 0}}
	path := writeArchiveFile(t, entries, [][][]byte{{[]byte("x")}}, []string{"text/plain"}, 9, nil)
	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.readBlob(0, 0)
	require.ErrorIs(t, err, ErrUnsupportedCompression)
}

func TestReadBlob_OutOfRangeCluster(t *testing.T) {
	entries := []fixtureEntry{{namespace: 'A', url: "One", title: "One", mimeCode: 0}}
	a := buildArchive(t, entries, [][][]byte{{[]byte("x")}}, []string{"text/plain"})
	defer a.Close()

	_, err := a.readBlob(9, 0)
	require.ErrorIs(t, err, ErrNotFound)
}
