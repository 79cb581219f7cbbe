package zim

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Cluster compression codes, per spec.md §3/§6. These do NOT match the
// teacher's old ad hoc mapping (which used 4 for deflate and 6 for
// zstd) — this module follows the format's real codes instead, see
// DESIGN.md.
const (
	compressionNone = 1
	compressionXZ   = 4
	compressionZstd = 5
)

const extendedOffsetBit = 0x10

const (
	// maxBlobSize mirrors the original C reader's MAX_ARTICLE_SIZE cap.
	maxBlobSize = 10 * 1024 * 1024
	// maxClusterBytes bounds how much a single zstd cluster may expand
	// to when fully materialized.
	maxClusterBytes = 64 * 1024 * 1024
)

// zstdDecoderPool amortizes zstd.Decoder setup cost across blob reads,
// matching the pooling the teacher's reader already does.
var zstdDecoderPool = sync.Pool{
	New: func() any {
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
		if err != nil {
			return nil
		}
		return d
	},
}

// clusterExtent returns the half-open byte range [start, end) of cluster
// n within the archive file, including its leading info byte.
func (a *Archive) clusterExtent(n uint32) (start, end uint64, err error) {
	if n >= a.header.ClusterCount {
		return 0, 0, fmt.Errorf("zim: cluster %d out of range (%d total): %w", n, a.header.ClusterCount, ErrNotFound)
	}
	start = a.clusterPtrs[n]
	if n+1 < a.header.ClusterCount {
		end = a.clusterPtrs[n+1]
	} else {
		end = a.header.ChecksumPos
	}
	return start, end, nil
}

// readBlob implements the C4 cluster-reader contract: given a cluster and
// blob index, produce the blob's bytes, dispatching on the cluster's
// compression byte.
func (a *Archive) readBlob(clusterNum, blobNum uint32) ([]byte, error) {
	start, end, err := a.clusterExtent(clusterNum)
	if err != nil {
		return nil, err
	}
	if end < start+1 {
		return nil, fmt.Errorf("%w: cluster %d has non-positive length", ErrCorruptStream, clusterNum)
	}

	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("zim: reopening archive: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(int64(start), io.SeekStart); err != nil {
		return nil, err
	}
	var infoByte [1]byte
	if _, err := io.ReadFull(f, infoByte[:]); err != nil {
		return nil, ErrTruncated
	}

	compression := infoByte[0] & 0x0F
	offsetWidth := 4
	if infoByte[0]&extendedOffsetBit != 0 {
		offsetWidth = 8
	}
	clusterLen := int64(end-start) - 1

	switch compression {
	case compressionNone:
		return readBlobUncompressed(f, start, offsetWidth, blobNum)
	case compressionZstd:
		data, err := decompressZstd(io.LimitReader(f, clusterLen))
		if err != nil {
			return nil, err
		}
		return extractBlobFromBuffer(data, offsetWidth, blobNum)
	case compressionXZ:
		return readBlobXZ(a.path, start+1, clusterLen, offsetWidth, blobNum)
	default:
		return nil, fmt.Errorf("%w: compression code %d", ErrUnsupportedCompression, compression)
	}
}

// readBlobUncompressed implements the uncompressed path of spec.md §4.4:
// the offset table and payloads are in place in the file, so a blob is
// two seeked reads away.
func readBlobUncompressed(f *os.File, clusterStart uint64, offsetWidth int, blobNum uint32) ([]byte, error) {
	p := clusterStart + 1 + uint64(offsetWidth)*uint64(blobNum)
	if _, err := f.Seek(int64(p), io.SeekStart); err != nil {
		return nil, err
	}
	blobStart, err := readOffset(f, offsetWidth)
	if err != nil {
		return nil, err
	}
	blobEnd, err := readOffset(f, offsetWidth)
	if err != nil {
		return nil, err
	}
	if err := validateBlobRange(blobStart, blobEnd); err != nil {
		return nil, err
	}

	if _, err := f.Seek(int64(clusterStart)+1+int64(blobStart), io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, blobEnd-blobStart)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, ErrTruncated
	}
	return buf, nil
}

// extractBlobFromBuffer operates on an already fully decompressed (or
// naturally in-memory) cluster buffer, indexing the offset table from
// position 0 — used by the zstd path.
func extractBlobFromBuffer(data []byte, offsetWidth int, blobNum uint32) ([]byte, error) {
	if len(data) < offsetWidth {
		return nil, fmt.Errorf("%w: cluster data too small", ErrCorruptStream)
	}

	// The offset table's first entry is the size of the table itself
	// (blob 0 begins immediately after it), so the table holds
	// first/offsetWidth entries total — one more than there are blobs.
	first, err := readOffset(bytes.NewReader(data), offsetWidth)
	if err != nil {
		return nil, err
	}
	if first < uint64(offsetWidth) {
		return nil, fmt.Errorf("%w: offset table size too small", ErrCorruptStream)
	}
	numBlobs := first/uint64(offsetWidth) - 1
	if uint64(blobNum) >= numBlobs {
		return nil, fmt.Errorf("%w: blob %d out of range (%d blobs in cluster)", ErrNotFound, blobNum, numBlobs)
	}

	startPos := int(blobNum) * offsetWidth
	endPos := startPos + offsetWidth
	if endPos+offsetWidth > len(data) {
		return nil, fmt.Errorf("%w: offset table truncated", ErrCorruptStream)
	}
	blobStart, err := readOffset(bytes.NewReader(data[startPos:]), offsetWidth)
	if err != nil {
		return nil, err
	}
	blobEnd, err := readOffset(bytes.NewReader(data[endPos:]), offsetWidth)
	if err != nil {
		return nil, err
	}
	if err := validateBlobRange(blobStart, blobEnd); err != nil {
		return nil, err
	}
	if blobEnd > uint64(len(data)) {
		return nil, fmt.Errorf("%w: blob end past end of cluster", ErrCorruptStream)
	}
	return data[blobStart:blobEnd], nil
}

func validateBlobRange(start, end uint64) error {
	if end < start {
		return fmt.Errorf("%w: blob end before blob start", ErrCorruptStream)
	}
	if end-start > maxBlobSize {
		return fmt.Errorf("%w: blob size %d exceeds %d byte cap", ErrLimitExceeded, end-start, maxBlobSize)
	}
	return nil
}

// decompressZstd fully materializes a zstd-compressed cluster, using a
// pooled decoder to avoid repeated decoder setup cost.
func decompressZstd(r io.Reader) ([]byte, error) {
	v := zstdDecoderPool.Get()
	dec, _ := v.(*zstd.Decoder)
	if dec == nil {
		fresh, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd init: %v", ErrCorruptStream, err)
		}
		defer fresh.Close()
		return readAllCapped(fresh, maxClusterBytes)
	}

	if err := dec.Reset(r); err != nil {
		zstdDecoderPool.Put(dec)
		return nil, fmt.Errorf("%w: zstd reset: %v", ErrCorruptStream, err)
	}
	data, err := readAllCapped(dec, maxClusterBytes)
	zstdDecoderPool.Put(dec)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func readAllCapped(r io.Reader, limit int) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStream, err)
	}
	if len(data) > limit {
		return nil, fmt.Errorf("%w: decompressed cluster exceeds %d bytes", ErrLimitExceeded, limit)
	}
	return data, nil
}

// xzSkipCapture performs one streaming pass over an XZ-compressed
// cluster: re-open the file, seek to the cluster's compressed payload,
// decode from the start, discard skip logical bytes, then capture the
// next len(buf) bytes into buf. It never materializes more of the
// decompressed stream than skip+len(buf) bytes at a time (the skipped
// prefix is streamed into io.Discard through a small fixed-size buffer).
func xzSkipCapture(path string, payloadStart uint64, clusterLen int64, skip uint64, buf []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(int64(payloadStart), io.SeekStart); err != nil {
		return err
	}

	xr, err := xz.NewReader(io.LimitReader(f, clusterLen))
	if err != nil {
		return fmt.Errorf("%w: xz init: %v", ErrCorruptStream, err)
	}

	if skip > 0 {
		n, err := io.CopyN(io.Discard, xr, int64(skip))
		if err != nil || uint64(n) < skip {
			return fmt.Errorf("%w: end of stream before logical offset %d", ErrCorruptStream, skip)
		}
	}

	if _, err := io.ReadFull(xr, buf); err != nil {
		return fmt.Errorf("%w: end of stream before capturing %d bytes", ErrCorruptStream, len(buf))
	}
	return nil
}

// readBlobXZ is the nontrivial case of spec.md §4.4: the blob offset
// table lives at the start of the decompressed stream, the blob payload
// itself may be much further in, and the whole cluster need not be
// materialized to read one blob.
//
// Passes A and B of the spec are collapsed into one read here since the
// blob's start and end offsets are adjacent entries in the table
// (offsetWidth apart) — one skip-then-capture-2*offsetWidth pass gets
// both. Pass C then re-initializes the decoder to fetch the blob itself.
func readBlobXZ(path string, payloadStart uint64, clusterLen int64, offsetWidth int, blobNum uint32) ([]byte, error) {
	offsets := make([]byte, offsetWidth*2)
	skip := uint64(offsetWidth) * uint64(blobNum)
	if err := xzSkipCapture(path, payloadStart, clusterLen, skip, offsets); err != nil {
		return nil, err
	}

	blobStart, err := readOffset(bytes.NewReader(offsets[:offsetWidth]), offsetWidth)
	if err != nil {
		return nil, err
	}
	blobEnd, err := readOffset(bytes.NewReader(offsets[offsetWidth:]), offsetWidth)
	if err != nil {
		return nil, err
	}
	if err := validateBlobRange(blobStart, blobEnd); err != nil {
		return nil, err
	}

	blob := make([]byte, blobEnd-blobStart)
	if err := xzSkipCapture(path, payloadStart, clusterLen, blobStart, blob); err != nil {
		return nil, err
	}
	return blob, nil
}
