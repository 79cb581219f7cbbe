package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kiwix-go/zimarchive/internal/zim"
)

func TestIsWhitelisted(t *testing.T) {
	wl := []string{"text/plain", "text/html"}
	require.True(t, isWhitelisted("text/html", wl))
	require.True(t, isWhitelisted("text/html; charset=utf-8", wl))
	require.False(t, isWhitelisted("image/png", wl))
}

func le16(v uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); return b }
func le32(v uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); return b }
func le64(v uint64) []byte { b := make([]byte, 8); binary.LittleEndian.PutUint64(b, v); return b }

// buildTestArchive writes a minimal, well-formed ZIM file to a temp path
// with one entry of each kind zimdump's record format has to distinguish:
// a whitelisted content entry, a non-whitelisted content entry, a
// redirect and a deleted sentinel. All in namespace 'A', already sorted
// by url as binary search requires.
func buildTestArchive(t *testing.T) *zim.Archive {
	t.Helper()

	mimeTypes := []string{"text/html", "image/png"}
	var mimeBuf bytes.Buffer
	for _, m := range mimeTypes {
		mimeBuf.WriteString(m)
		mimeBuf.WriteByte(0)
	}
	mimeBuf.WriteByte(0)

	type entry struct {
		mimeCode    uint16
		isRedirect  bool
		isDeleted   bool
		redirectIdx uint32
		url, title  string
	}
	entries := []entry{
		{mimeCode: 0, url: "alpha.html", title: "Alpha"},                     // text/html, whitelisted
		{mimeCode: 1, url: "beta.png", title: "Beta"},                        // image/png, not whitelisted
		{isDeleted: true, url: "delta-gone", title: ""},                      // deleted sentinel
		{isRedirect: true, redirectIdx: 0, url: "gamma-redirect", title: ""}, // redirect
	}

	blobs := [][]byte{[]byte("<p>alpha body</p>"), []byte("fake-png-bytes")}

	var dirBuf bytes.Buffer
	var dirOffsets []uint64
	for i, e := range entries {
		dirOffsets = append(dirOffsets, uint64(dirBuf.Len()))
		switch {
		case e.isRedirect:
			dirBuf.Write(le16(0xFFFF))
			dirBuf.WriteByte(0)
			dirBuf.WriteByte('A')
			dirBuf.Write(le32(0))
			dirBuf.Write(le32(e.redirectIdx))
		case e.isDeleted:
			dirBuf.Write(le16(0xFFFD))
			dirBuf.WriteByte(0)
			dirBuf.WriteByte('A')
			dirBuf.Write(le32(0))
			dirBuf.Write(le32(0)) // cluster (unused)
			dirBuf.Write(le32(0)) // blob (unused)
		default:
			dirBuf.Write(le16(e.mimeCode))
			dirBuf.WriteByte(0)
			dirBuf.WriteByte('A')
			dirBuf.Write(le32(0))
			dirBuf.Write(le32(0)) // single cluster
			dirBuf.Write(le32(uint32(i)))
		}
		dirBuf.WriteString(e.url)
		dirBuf.WriteByte(0)
		dirBuf.WriteString(e.title)
		dirBuf.WriteByte(0)
	}

	// One uncompressed cluster holding both content blobs.
	offsetWidth := 4
	var table bytes.Buffer
	var data bytes.Buffer
	offset := uint64(len(blobs)+1) * uint64(offsetWidth)
	for _, b := range blobs {
		table.Write(le32(uint32(offset)))
		data.Write(b)
		offset += uint64(len(b))
	}
	table.Write(le32(uint32(offset)))

	var clusterBuf bytes.Buffer
	clusterBuf.WriteByte(1) // compression: uncompressed
	clusterBuf.Write(table.Bytes())
	clusterBuf.Write(data.Bytes())
	clusterOffsets := []uint64{0}

	const headerSize = 4 + 2 + 2 + 16 + 4 + 4 + 8*4 + 4 + 4 + 8
	mimeListPos := uint64(headerSize)
	urlPtrPos := mimeListPos + uint64(mimeBuf.Len())
	titlePtrPos := urlPtrPos + uint64(len(entries))*8
	clusterPtrPos := titlePtrPos + uint64(len(entries))*8
	dirPos := clusterPtrPos + uint64(len(clusterOffsets))*8
	clusterDataPos := dirPos + uint64(dirBuf.Len())
	checksumPos := clusterDataPos + uint64(clusterBuf.Len())

	var out bytes.Buffer
	out.Write(le32(0x44D495A))
	out.Write(le16(6))
	out.Write(le16(0))
	out.Write(make([]byte, 16))
	out.Write(le32(uint32(len(entries))))
	out.Write(le32(uint32(len(clusterOffsets))))
	out.Write(le64(urlPtrPos))
	out.Write(le64(titlePtrPos))
	out.Write(le64(clusterPtrPos))
	out.Write(le64(mimeListPos))
	out.Write(le32(0))
	out.Write(le32(0))
	out.Write(le64(checksumPos))

	out.Write(mimeBuf.Bytes())
	for _, off := range dirOffsets {
		out.Write(le64(dirPos + off))
	}
	for _, off := range dirOffsets {
		out.Write(le64(dirPos + off))
	}
	for _, off := range clusterOffsets {
		out.Write(le64(clusterDataPos + off))
	}
	out.Write(dirBuf.Bytes())
	out.Write(clusterBuf.Bytes())

	f, err := os.CreateTemp(t.TempDir(), "dumptest-*.zim")
	require.NoError(t, err)
	_, err = f.Write(out.Bytes())
	require.NoError(t, err)
	require.NoError(t, f.Close())

	a, err := zim.Open(f.Name())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestDumpMimeTypes(t *testing.T) {
	a := buildTestArchive(t)
	var buf bytes.Buffer
	dumpMimeTypes(&buf, a)
	require.Equal(t, "text/html\nimage/png\n", buf.String())
}

func TestDumpAllArticles_RecordFraming(t *testing.T) {
	a := buildTestArchive(t)
	var buf bytes.Buffer
	dumpAllArticles(&buf, a, true, []string{"text/html"})
	out := buf.String()

	require.Contains(t, out, "<START_OF_ZIM_ARTICLE>\nurl: alpha.html\ntitle: Alpha\nmime-type: text/html\ncontent:\n<p>alpha body</p>\n<END_OF_ZIM_ARTICLE>\n")
	require.Contains(t, out, "<START_OF_ZIM_ARTICLE>\nurl: beta.png\ntitle: Beta\nmime-type: image/png\ncontent:\nNOT-WHITELISTED-MIME-TYPE\n<END_OF_ZIM_ARTICLE>\n")
	require.Contains(t, out, "<START_OF_ZIM_ARTICLE>\nurl: gamma-redirect\ntitle: \nmime-type: none (redirect)\n<END_OF_ZIM_ARTICLE>\n")
	require.Contains(t, out, "<START_OF_ZIM_ARTICLE>\nurl: delta-gone\ntitle: \nmime-type: none (deleted page)\n<END_OF_ZIM_ARTICLE>\n")
}

func TestDumpAllArticles_NoContentWithoutShowFlag(t *testing.T) {
	a := buildTestArchive(t)
	var buf bytes.Buffer
	dumpAllArticles(&buf, a, false, []string{"text/html"})
	out := buf.String()

	require.NotContains(t, out, "content:")
	require.Contains(t, out, "mime-type: text/html")
}
