package zim

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDirectoryEntry_DeletedSentinel(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(le16(mimeDeleted))
	buf.WriteByte(0) // paramLen
	buf.WriteByte('A')
	buf.Write(le32(0))
	buf.Write(le32(0)) // cluster (unused for a deleted entry)
	buf.Write(le32(0)) // blob (unused for a deleted entry)
	buf.WriteString("Gone")
	buf.WriteByte(0)
	buf.WriteString("")
	buf.WriteByte(0)

	e, err := parseDirectoryEntry(newFileReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	require.Equal(t, EntryDeleted, e.Kind)
	require.Equal(t, "Gone", e.URL)
}

func TestParseDirectoryEntry_RedlinkSentinel(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(le16(mimeRedlink))
	buf.WriteByte(0) // paramLen
	buf.WriteByte('A')
	buf.Write(le32(0))
	buf.Write(le32(0)) // cluster (unused for a redlink entry)
	buf.Write(le32(0)) // blob (unused for a redlink entry)
	buf.WriteString("Broken")
	buf.WriteByte(0)
	buf.WriteString("")
	buf.WriteByte(0)

	e, err := parseDirectoryEntry(newFileReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	require.Equal(t, EntryRedlink, e.Kind)
	require.Equal(t, "Broken", e.URL)
}

func TestParseDirectoryEntry_SkipsParamBytes(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(le16(0))
	buf.WriteByte(3) // paramLen: 3 bytes of params to skip
	buf.Write([]byte{0xAA, 0xBB, 0xCC})
	buf.WriteByte('A')
	buf.Write(le32(0))
	buf.Write(le32(1)) // cluster
	buf.Write(le32(2)) // blob
	buf.WriteString("Url")
	buf.WriteByte(0)
	buf.WriteString("Title")
	buf.WriteByte(0)

	e, err := parseDirectoryEntry(newFileReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	require.Equal(t, EntryContent, e.Kind)
	require.EqualValues(t, 1, e.ClusterNumber)
	require.EqualValues(t, 2, e.BlobNumber)
	require.Equal(t, "Url", e.URL)
	require.Equal(t, "Title", e.Title)
}

func TestParseDirectoryEntry_RedirectCarriesIndex(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(le16(mimeRedirect))
	buf.WriteByte(0)
	buf.WriteByte('A')
	buf.Write(le32(0))
	buf.Write(le32(42))
	buf.WriteString("Alias")
	buf.WriteByte(0)
	buf.WriteString("")
	buf.WriteByte(0)

	e, err := parseDirectoryEntry(newFileReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	require.Equal(t, EntryRedirect, e.Kind)
	require.EqualValues(t, 42, e.RedirectIndex)
}

func TestParseDirectoryEntry_TruncatedFails(t *testing.T) {
	_, err := parseDirectoryEntry(newFileReader(bytes.NewReader([]byte{1})))
	require.ErrorIs(t, err, ErrTruncated)
}
