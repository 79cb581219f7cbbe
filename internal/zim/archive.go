// Package zim implements a random-access reader for the ZIM archive
// format: a content-addressable, cluster-compressed container used for
// offline bundles of web content. It enumerates entries, resolves a URL
// to its directory entry via binary search, and materializes the
// uncompressed bytes of any entry's blob, transparently decoding the
// archive's XZ or zstd cluster compression.
//
// An Archive does not hold a live file descriptor between calls: every
// operation opens the underlying file, seeks, reads, and closes it. This
// makes a single Archive value safe to use concurrently from multiple
// goroutines, or from multiple processes, without synchronization —
// provided the file on disk is not being rewritten underneath it.
package zim

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// maxRedirectDepth bounds how many hops Read/ReadAt will follow before
// declaring a redirect loop.
const maxRedirectDepth = 16

// Archive is a handle to an open, read-only ZIM file. The header, mime
// table, and pointer tables are parsed once at Open and held immutably
// afterward.
type Archive struct {
	path        string
	header      Header
	mimeTypes   []string
	urlPtrs     []uint64
	clusterPtrs []uint64
}

// Open parses path as a ZIM archive: its header, mime-type table, URL
// pointer table, and cluster pointer table. It fails fast on a magic
// mismatch or any truncated table; per-entry corruption is tolerated
// later, during iteration or lookup.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("zim: opening %s: %w", path, err)
	}
	defer f.Close()

	fr := newFileReader(f)
	header, err := parseHeader(fr)
	if err != nil {
		return nil, err
	}

	mimeTypes, err := readMimeTypes(fr, header.MimeListPos)
	if err != nil {
		return nil, fmt.Errorf("zim: reading mime list: %w", err)
	}

	urlPtrs, err := readPointerTable(fr, header.URLPtrPos, header.ArticleCount)
	if err != nil {
		return nil, fmt.Errorf("zim: reading url pointer table: %w", err)
	}

	clusterPtrs, err := readPointerTable(fr, header.ClusterPtrPos, header.ClusterCount)
	if err != nil {
		return nil, fmt.Errorf("zim: reading cluster pointer table: %w", err)
	}

	if len(urlPtrs) > 0 {
		header.DirEntriesPos = urlPtrs[0]
	}

	log.Printf("zim: opened %s: %d articles, %d clusters", path, header.ArticleCount, header.ClusterCount)

	return &Archive{
		path:        path,
		header:      header,
		mimeTypes:   mimeTypes,
		urlPtrs:     urlPtrs,
		clusterPtrs: clusterPtrs,
	}, nil
}

// Close releases any resources held by the Archive. Since no file
// descriptor is held between operations, this is currently a no-op; it
// exists so callers can treat Archive like any other closeable handle.
func (a *Archive) Close() error { return nil }

// ArticleCount returns the number of entries in the URL (and title)
// pointer tables.
func (a *Archive) ArticleCount() uint32 { return a.header.ArticleCount }

// ClusterCount returns the number of clusters in the archive.
func (a *Archive) ClusterCount() uint32 { return a.header.ClusterCount }

// MainPageIndex returns the URL-pointer-table index of the archive's
// main page entry.
func (a *Archive) MainPageIndex() uint32 { return a.header.MainPage }

// LayoutPageIndex returns the URL-pointer-table index of the archive's
// layout page entry.
func (a *Archive) LayoutPageIndex() uint32 { return a.header.LayoutPage }

// MimeList returns a copy of the archive's mime-type table; the index of
// a string in the returned slice is its mime-code.
func (a *Archive) MimeList() []string {
	out := make([]string, len(a.mimeTypes))
	copy(out, a.mimeTypes)
	return out
}

// EntryAt parses and returns the directory entry at URL-pointer-table
// index idx.
func (a *Archive) EntryAt(idx uint32) (*DirectoryEntry, error) {
	if idx >= a.header.ArticleCount {
		return nil, fmt.Errorf("zim: entry index %d out of range (%d articles): %w", idx, a.header.ArticleCount, ErrNotFound)
	}

	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("zim: reopening archive: %w", err)
	}
	defer f.Close()

	fr := newFileReader(f)
	if err := fr.seek(int64(a.urlPtrs[idx])); err != nil {
		return nil, err
	}
	e, err := parseDirectoryEntry(fr)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Entries walks the URL pointer table in order — lexicographic by
// (namespace, url) — yielding each entry's table index alongside the
// parsed entry. An entry that fails to parse is logged and skipped
// rather than aborting the whole walk, so one bad record doesn't prevent
// enumerating the rest of the archive. Range over it directly:
//
//	for idx, entry := range archive.Entries { ... }
func (a *Archive) Entries(yield func(idx uint32, entry *DirectoryEntry) bool) {
	f, err := os.Open(a.path)
	if err != nil {
		log.Printf("zim: entries: %v", err)
		return
	}
	defer f.Close()

	fr := newFileReader(f)
	for i := uint32(0); i < a.header.ArticleCount; i++ {
		if err := fr.seek(int64(a.urlPtrs[i])); err != nil {
			log.Printf("zim: entries: skipping index %d: %v", i, err)
			continue
		}
		e, err := parseDirectoryEntry(fr)
		if err != nil {
			log.Printf("zim: entries: skipping bogus entry at index %d: %v", i, err)
			continue
		}
		if !yield(i, &e) {
			return
		}
	}
}

// FindURL performs a binary search over the URL pointer table for an
// entry whose url has the given query as a prefix, per spec.md §4.5: the
// midpoint is cut = lo + (hi-lo)/2, the search terminates without a
// match as soon as lo == cut (the interval has shrunk to a single
// candidate that is, by design, never itself examined), and namespace is
// not part of the comparison — callers needing a namespace-qualified
// lookup must encode that into url themselves.
//
// Because the comparison is a prefix match rather than equality, a query
// that is a prefix of more than one entry's url returns whichever one
// the search path happens to land on first.
func (a *Archive) FindURL(url string) (uint32, *DirectoryEntry, error) {
	if a.header.ArticleCount == 0 {
		return 0, nil, ErrNotFound
	}

	f, err := os.Open(a.path)
	if err != nil {
		return 0, nil, fmt.Errorf("zim: reopening archive: %w", err)
	}
	defer f.Close()
	fr := newFileReader(f)

	lo, hi := uint32(0), a.header.ArticleCount
	for {
		cut := lo + (hi-lo)/2
		if lo == cut {
			return 0, nil, ErrNotFound
		}

		if err := fr.seek(int64(a.urlPtrs[cut])); err != nil {
			return 0, nil, err
		}
		entry, err := parseDirectoryEntry(fr)
		if err != nil {
			return 0, nil, err
		}

		switch cmp := comparePrefix(url, entry.URL); {
		case cmp == 0:
			return cut, &entry, nil
		case cmp < 0:
			hi = cut
		default:
			lo = cut
		}
	}
}

// comparePrefix compares query against entryURL over the first
// len(query) bytes, mirroring the reference implementation's
// strncmp(query, entryURL, len(query)). Returns 0 when entryURL equals
// query or has query as a prefix, negative when query sorts before
// entryURL, positive otherwise (including when entryURL is a strict,
// shorter prefix of query — entryURL's implicit terminator sorts below
// any further query byte).
func comparePrefix(query, entryURL string) int {
	n := len(query)
	m := n
	if len(entryURL) < m {
		m = len(entryURL)
	}
	if c := strings.Compare(query[:m], entryURL[:m]); c != 0 {
		return c
	}
	if len(entryURL) < n {
		return 1
	}
	return 0
}

// MimeOf classifies an entry's mime-code against the archive's mime
// table, returning one of the four sentinel classes or the resolved
// mime-type string.
func (a *Archive) MimeOf(entry *DirectoryEntry) MimeClass {
	switch entry.Kind {
	case EntryRedirect:
		return MimeClass{Kind: MimeRedirectSentinel}
	case EntryRedlink:
		return MimeClass{Kind: MimeRedlinkSentinel}
	case EntryDeleted:
		return MimeClass{Kind: MimeDeletedSentinel}
	}
	if int(entry.MimeCode) < len(a.mimeTypes) {
		return MimeClass{Kind: MimeKnown, Known: a.mimeTypes[entry.MimeCode]}
	}
	return MimeClass{Kind: MimeUnknown}
}

// resolveContent follows a redirect chain starting at entry (bounded by
// maxRedirectDepth) down to a content, redlink, or deleted entry, then
// materializes its blob if it is content.
func (a *Archive) resolveContent(entry *DirectoryEntry) (*DirectoryEntry, []byte, error) {
	e := entry
	for depth := 0; e.Kind == EntryRedirect; depth++ {
		if depth >= maxRedirectDepth {
			return nil, nil, ErrRedirectLoop
		}
		next, err := a.EntryAt(e.RedirectIndex)
		if err != nil {
			return nil, nil, err
		}
		e = next
	}

	switch e.Kind {
	case EntryRedlink, EntryDeleted:
		return e, nil, ErrNotFound
	default:
		data, err := a.readBlob(e.ClusterNumber, e.BlobNumber)
		return e, data, err
	}
}

// Read returns the uncompressed content of entry, following redirects
// internally. A redlink or deleted entry, or a redirect chain exceeding
// the maximum depth, is reported as an error (ErrNotFound /
// ErrRedirectLoop respectively) rather than partial content.
func (a *Archive) Read(entry *DirectoryEntry) ([]byte, error) {
	_, data, err := a.resolveContent(entry)
	return data, err
}

// ReadAt is a convenience combining EntryAt(idx) and Read: it returns the
// entry's content and resolved mime-type string in one call.
func (a *Archive) ReadAt(idx uint32) (content []byte, mimeType string, err error) {
	entry, err := a.EntryAt(idx)
	if err != nil {
		return nil, "", err
	}
	resolved, data, err := a.resolveContent(entry)
	if err != nil {
		return nil, "", err
	}
	return data, a.MimeOf(resolved).Known, nil
}

// MimeSentinel classifies a directory entry's mime-code.
type MimeSentinel int

const (
	// MimeKnown means Known holds the resolved mime-type string.
	MimeKnown MimeSentinel = iota
	MimeRedirectSentinel
	MimeRedlinkSentinel
	MimeDeletedSentinel
	MimeUnknown
)

// MimeClass is the result of classifying a DirectoryEntry's mime-code.
type MimeClass struct {
	Kind  MimeSentinel
	Known string
}
