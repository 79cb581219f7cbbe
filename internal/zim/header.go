package zim

import "log"

// Magic number every ZIM file starts with, little-endian (decimal
// 72173914).
const magicNumber = 0x44D495A

const (
	maxMimeTypeLen   = 100
	maxMimeTypeCount = 10000
	maxURLTitleLen   = 1000
)

// expectedMajorVersions are logged-but-not-enforced per spec: a version
// mismatch is a diagnostic, never a reason to refuse the archive.
var expectedMajorVersions = [...]uint16{5, 6}

// Header is the fixed-layout ZIM header (little-endian throughout).
type Header struct {
	MagicNumber   uint32
	MajorVersion  uint16
	MinorVersion  uint16
	UUID          [16]byte
	ArticleCount  uint32
	ClusterCount  uint32
	URLPtrPos     uint64
	TitlePtrPos   uint64
	ClusterPtrPos uint64
	MimeListPos   uint64
	MainPage      uint32
	LayoutPage    uint32
	ChecksumPos   uint64

	// DirEntriesPos is derived, not read from the header proper: it is
	// filled in by Open from the offset of URL-pointer-table entry 0,
	// kept only as diagnostic state. Nothing else in this package
	// consults it.
	DirEntriesPos uint64
}

func parseHeader(f *fileReader) (Header, error) {
	var h Header
	magic, err := f.readU32()
	if err != nil {
		return h, err
	}
	if magic != magicNumber {
		return h, ErrBadMagic
	}
	h.MagicNumber = magic

	if h.MajorVersion, err = f.readU16(); err != nil {
		return h, err
	}
	if h.MinorVersion, err = f.readU16(); err != nil {
		return h, err
	}
	if !knownMajorVersion(h.MajorVersion) {
		log.Printf("zim: unexpected major version %d (expected one of %v)", h.MajorVersion, expectedMajorVersions)
	}
	if h.UUID, err = f.readUUID(); err != nil {
		return h, err
	}
	if h.ArticleCount, err = f.readU32(); err != nil {
		return h, err
	}
	if h.ClusterCount, err = f.readU32(); err != nil {
		return h, err
	}
	if h.URLPtrPos, err = f.readU64(); err != nil {
		return h, err
	}
	if h.TitlePtrPos, err = f.readU64(); err != nil {
		return h, err
	}
	if h.ClusterPtrPos, err = f.readU64(); err != nil {
		return h, err
	}
	if h.MimeListPos, err = f.readU64(); err != nil {
		return h, err
	}
	if h.MainPage, err = f.readU32(); err != nil {
		return h, err
	}
	if h.LayoutPage, err = f.readU32(); err != nil {
		return h, err
	}
	if h.ChecksumPos, err = f.readU64(); err != nil {
		return h, err
	}

	return h, nil
}

func knownMajorVersion(v uint16) bool {
	for _, want := range expectedMajorVersions {
		if v == want {
			return true
		}
	}
	return false
}

// readMimeTypes reads the NUL-terminated mime-type table starting at pos,
// stopping at the first empty string. The list is capped at
// maxMimeTypeCount entries and each string at maxMimeTypeLen bytes;
// overflow is dropped with a log diagnostic rather than failing the open.
func readMimeTypes(f *fileReader, pos uint64) ([]string, error) {
	if err := f.seek(int64(pos)); err != nil {
		return nil, err
	}

	var types []string
	for {
		s, truncated, err := f.readCString(maxMimeTypeLen)
		if err != nil {
			return nil, err
		}
		if truncated {
			log.Printf("zim: mime-type string truncated to %d bytes", maxMimeTypeLen)
		}
		if s == "" {
			return types, nil
		}
		if len(types) >= maxMimeTypeCount {
			log.Printf("zim: mime-type table exceeds %d entries, dropping the rest", maxMimeTypeCount)
			return types, nil
		}
		types = append(types, s)
	}
}

// readPointerTable reads count little-endian 8-byte offsets starting at
// pos — used for both the URL and cluster pointer tables.
func readPointerTable(f *fileReader, pos uint64, count uint32) ([]uint64, error) {
	if err := f.seek(int64(pos)); err != nil {
		return nil, err
	}
	out := make([]uint64, count)
	for i := range out {
		v, err := f.readU64()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
