package zim

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileReader_Integers(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x42)
	buf.Write(le16(0x1234))
	buf.Write(le32(0xDEADBEEF))
	buf.Write(le64(0x0102030405060708))

	fr := newFileReader(bytes.NewReader(buf.Bytes()))
	u8, err := fr.readU8()
	require.NoError(t, err)
	require.EqualValues(t, 0x42, u8)

	u16, err := fr.readU16()
	require.NoError(t, err)
	require.EqualValues(t, 0x1234, u16)

	u32, err := fr.readU32()
	require.NoError(t, err)
	require.EqualValues(t, 0xDEADBEEF, u32)

	u64, err := fr.readU64()
	require.NoError(t, err)
	require.EqualValues(t, 0x0102030405060708, u64)
}

func TestFileReader_ReadCString(t *testing.T) {
	fr := newFileReader(bytes.NewReader([]byte("hello\x00world\x00")))
	s, truncated, err := fr.readCString(100)
	require.NoError(t, err)
	require.False(t, truncated)
	require.Equal(t, "hello", s)

	s, truncated, err = fr.readCString(100)
	require.NoError(t, err)
	require.False(t, truncated)
	require.Equal(t, "world", s)
}

func TestFileReader_ReadCStringTruncates(t *testing.T) {
	fr := newFileReader(bytes.NewReader([]byte("abcdefgh\x00")))
	s, truncated, err := fr.readCString(4)
	require.NoError(t, err)
	require.True(t, truncated)
	require.Equal(t, "abcd", s)
}

func TestFileReader_ShortReadIsTruncated(t *testing.T) {
	fr := newFileReader(bytes.NewReader([]byte{1, 2}))
	_, err := fr.readU32()
	require.ErrorIs(t, err, ErrTruncated)
}

func TestReadOffset_Widths(t *testing.T) {
	v4, err := readOffset(bytes.NewReader(le32(100)), 4)
	require.NoError(t, err)
	require.EqualValues(t, 100, v4)

	v8, err := readOffset(bytes.NewReader(le64(100)), 8)
	require.NoError(t, err)
	require.EqualValues(t, 100, v8)
}
