package zim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryAt_ContentEntry(t *testing.T) {
	entries := []fixtureEntry{
		{namespace: 'A', url: "Apple", title: "Apple", mimeCode: 0},
		{namespace: 'A', url: "Banana", title: "Banana", mimeCode: 0},
	}
	clusters := [][][]byte{{[]byte("apple-body"), []byte("banana-body")}}
	a := buildArchive(t, entries, clusters, []string{"text/html"})
	defer a.Close()

	e, err := a.EntryAt(0)
	require.NoError(t, err)
	require.Equal(t, EntryContent, e.Kind)
	require.Equal(t, "Apple", e.URL)

	data, err := a.Read(e)
	require.NoError(t, err)
	require.Equal(t, "apple-body", string(data))
}

func TestEntryAt_OutOfRange(t *testing.T) {
	entries := []fixtureEntry{{namespace: 'A', url: "Only", title: "Only", mimeCode: 0}}
	a := buildArchive(t, entries, [][][]byte{{[]byte("x")}}, []string{"text/plain"})
	defer a.Close()

	_, err := a.EntryAt(5)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindURL_ExactAndPrefix(t *testing.T) {
	entries := []fixtureEntry{
		{namespace: 'A', url: "Ant", title: "Ant", mimeCode: 0},
		{namespace: 'A', url: "Bee", title: "Bee", mimeCode: 0},
		{namespace: 'A', url: "Cat", title: "Cat", mimeCode: 0},
		{namespace: 'A', url: "Dog", title: "Dog", mimeCode: 0},
	}
	clusters := [][][]byte{{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}}
	a := buildArchive(t, entries, clusters, []string{"text/plain"})
	defer a.Close()

	idx, e, err := a.FindURL("Cat")
	require.NoError(t, err)
	require.Equal(t, "Cat", e.URL)
	_ = idx

	_, e, err = a.FindURL("Ca")
	require.NoError(t, err)
	require.Equal(t, "Cat", e.URL)

	_, _, err = a.FindURL("Zebra")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindURL_EmptyArchive(t *testing.T) {
	a := &Archive{header: Header{ArticleCount: 0}}
	_, _, err := a.FindURL("anything")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestComparePrefix(t *testing.T) {
	require.Equal(t, 0, comparePrefix("Cat", "Cat"))
	require.Equal(t, 0, comparePrefix("Cat", "Catalog"))
	require.Positive(t, comparePrefix("Catalog", "Cat"))
	require.Negative(t, comparePrefix("Bee", "Cat"))
	require.Positive(t, comparePrefix("Dog", "Cat"))
}

func TestRedirectResolution(t *testing.T) {
	entries := []fixtureEntry{
		{namespace: 'A', url: "Alias", title: "Alias", isRedirect: true, redirectIdx: 1},
		{namespace: 'A', url: "Target", title: "Target", mimeCode: 0},
	}
	a := buildArchive(t, entries, [][][]byte{{[]byte("real-content")}}, []string{"text/html"})
	defer a.Close()

	data, mime, err := a.ReadAt(0)
	require.NoError(t, err)
	require.Equal(t, "real-content", string(data))
	require.Equal(t, "text/html", mime)
}

func TestRedirectLoop(t *testing.T) {
	entries := []fixtureEntry{
		{namespace: 'A', url: "A", title: "A", isRedirect: true, redirectIdx: 1},
		{namespace: 'A', url: "B", title: "B", isRedirect: true, redirectIdx: 0},
	}
	a := buildArchive(t, entries, nil, nil)
	defer a.Close()

	_, _, err := a.ReadAt(0)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrRedirectLoop))
}

func TestMimeOf_Sentinels(t *testing.T) {
	entries := []fixtureEntry{
		{namespace: 'A', url: "Real", title: "Real", isRedirect: true, redirectIdx: 0},
	}
	a := buildArchive(t, entries, nil, []string{"text/html"})
	defer a.Close()
	e, err := a.EntryAt(0)
	require.NoError(t, err)
	require.Equal(t, MimeRedirectSentinel, a.MimeOf(e).Kind)
}

func TestEntries_Iterates(t *testing.T) {
	entries := []fixtureEntry{
		{namespace: 'A', url: "Ant", title: "Ant", mimeCode: 0},
		{namespace: 'A', url: "Bee", title: "Bee", mimeCode: 0},
	}
	a := buildArchive(t, entries, [][][]byte{{[]byte("a"), []byte("b")}}, []string{"text/plain"})
	defer a.Close()

	var urls []string
	for _, e := range a.Entries {
		urls = append(urls, e.URL)
	}
	require.Equal(t, []string{"Ant", "Bee"}, urls)
}

func TestEntries_StopsEarly(t *testing.T) {
	entries := []fixtureEntry{
		{namespace: 'A', url: "Ant", title: "Ant", mimeCode: 0},
		{namespace: 'A', url: "Bee", title: "Bee", mimeCode: 0},
	}
	a := buildArchive(t, entries, [][][]byte{{[]byte("a"), []byte("b")}}, []string{"text/plain"})
	defer a.Close()

	count := 0
	a.Entries(func(idx uint32, e *DirectoryEntry) bool {
		count++
		return false
	})
	require.Equal(t, 1, count)
}
