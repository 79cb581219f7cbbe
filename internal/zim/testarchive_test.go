package zim

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

// fixtureEntry describes one directory entry to bake into a synthetic
// archive built by buildArchive.
type fixtureEntry struct {
	namespace   byte
	url, title  string
	redirectIdx uint32
	isRedirect  bool
	// content-only fields. writeArchiveFile does not read blob: content
	// entries point, in order, at blobs 0, 1, ... of cluster 0.
	mimeCode uint16
	blob     []byte
}

// buildArchive assembles a minimal, well-formed ZIM file in memory from a
// list of entries (assumed already sorted by url, as binary search
// requires) and one or more clusters of uncompressed blobs, then writes
// it to a temp file and opens it.
func buildArchive(t *testing.T, entries []fixtureEntry, clusters [][][]byte, mimeTypes []string) *Archive {
	t.Helper()
	path := writeArchiveFile(t, entries, clusters, mimeTypes, compressionNone, nil)
	a, err := Open(path)
	require.NoError(t, err)
	return a
}

func le32(v uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); return b }
func le64(v uint64) []byte { b := make([]byte, 8); binary.LittleEndian.PutUint64(b, v); return b }
func le16(v uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); return b }

// writeArchiveFile writes a synthetic archive to a temp file and returns
// its path. clusters[i] is the list of blobs for cluster i; encodeCluster
// controls how each cluster's bytes are produced (compressionNone,
// compressionZstd, compressionXZ).
func writeArchiveFile(t *testing.T, entries []fixtureEntry, clusters [][][]byte, mimeTypes []string, encodeCluster byte, offsetWidth *int) string {
	t.Helper()
	ow := 4
	if offsetWidth != nil {
		ow = *offsetWidth
	}

	var mimeBuf bytes.Buffer
	for _, m := range mimeTypes {
		mimeBuf.WriteString(m)
		mimeBuf.WriteByte(0)
	}
	mimeBuf.WriteByte(0)

	var dirBuf bytes.Buffer
	var dirOffsets []uint64
	blobCounter := map[int]int{}
	for _, e := range entries {
		dirOffsets = append(dirOffsets, uint64(dirBuf.Len()))
		if e.isRedirect {
			dirBuf.Write(le16(mimeRedirect))
			dirBuf.WriteByte(0) // paramLen
			dirBuf.WriteByte(e.namespace)
			dirBuf.Write(le32(0)) // revision
			dirBuf.Write(le32(e.redirectIdx))
		} else {
			dirBuf.Write(le16(e.mimeCode))
			dirBuf.WriteByte(0)
			dirBuf.WriteByte(e.namespace)
			dirBuf.Write(le32(0))
			clusterNum := 0
			blobNum := blobCounter[clusterNum]
			blobCounter[clusterNum] = blobNum + 1
			dirBuf.Write(le32(uint32(clusterNum)))
			dirBuf.Write(le32(uint32(blobNum)))
		}
		dirBuf.WriteString(e.url)
		dirBuf.WriteByte(0)
		dirBuf.WriteString(e.title)
		dirBuf.WriteByte(0)
	}

	var clusterBuf bytes.Buffer
	var clusterOffsets []uint64
	for _, blobs := range clusters {
		clusterOffsets = append(clusterOffsets, uint64(clusterBuf.Len()))
		payload := encodeClusterPayload(t, blobs, ow, encodeCluster)
		infoByte := encodeCluster
		if ow == 8 {
			infoByte |= extendedOffsetBit
		}
		clusterBuf.WriteByte(infoByte)
		clusterBuf.Write(payload)
	}

	const headerSize = 4 + 2 + 2 + 16 + 4 + 4 + 8*4 + 4 + 4 + 8
	mimeListPos := uint64(headerSize)
	urlPtrPos := mimeListPos + uint64(mimeBuf.Len())
	titlePtrPos := urlPtrPos + uint64(len(entries))*8
	clusterPtrPos := titlePtrPos + uint64(len(entries))*8
	dirPos := clusterPtrPos + uint64(len(clusters))*8
	clusterDataPos := dirPos + uint64(dirBuf.Len())
	checksumPos := clusterDataPos + uint64(clusterBuf.Len())

	var out bytes.Buffer
	out.Write(le32(magicNumber))
	out.Write(le16(6))
	out.Write(le16(0))
	out.Write(make([]byte, 16)) // uuid
	out.Write(le32(uint32(len(entries))))
	out.Write(le32(uint32(len(clusters))))
	out.Write(le64(urlPtrPos))
	out.Write(le64(titlePtrPos))
	out.Write(le64(clusterPtrPos))
	out.Write(le64(mimeListPos))
	out.Write(le32(0)) // main page
	out.Write(le32(0)) // layout page
	out.Write(le64(checksumPos))

	out.Write(mimeBuf.Bytes())

	for _, off := range dirOffsets {
		out.Write(le64(dirPos + off))
	}
	for _, off := range dirOffsets { // title pointer table, unused by this package but must exist
		out.Write(le64(dirPos + off))
	}
	for _, off := range clusterOffsets {
		out.Write(le64(clusterDataPos + off))
	}

	out.Write(dirBuf.Bytes())
	out.Write(clusterBuf.Bytes())

	f, err := os.CreateTemp(t.TempDir(), "fixture-*.zim")
	require.NoError(t, err)
	_, err = f.Write(out.Bytes())
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func encodeClusterPayload(t *testing.T, blobs [][]byte, offsetWidth int, compression byte) []byte {
	t.Helper()
	var table bytes.Buffer
	var data bytes.Buffer
	// Blob offsets are relative to the start of the decompressed cluster
	// (i.e. the start of this very offset table), matching
	// extractBlobFromBuffer/readBlobUncompressed — so blob 0 begins right
	// after the table, not at position 0.
	offset := uint64(len(blobs)+1) * uint64(offsetWidth)
	writeOffset := func(v uint64) {
		if offsetWidth == 4 {
			table.Write(le32(uint32(v)))
		} else {
			table.Write(le64(v))
		}
	}
	for _, b := range blobs {
		writeOffset(offset)
		data.Write(b)
		offset += uint64(len(b))
	}
	writeOffset(offset)

	raw := append(table.Bytes(), data.Bytes()...)
	switch compression {
	case compressionNone:
		return raw
	case compressionZstd:
		enc, err := zstd.NewWriter(nil)
		require.NoError(t, err)
		return enc.EncodeAll(raw, nil)
	case compressionXZ:
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write(raw)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return buf.Bytes()
	default:
		// Unrecognized codes still need well-formed bytes on disk; the
		// test exercising this path checks that readBlob rejects the
		// info-byte code before ever looking at the payload.
		return raw
	}
}
