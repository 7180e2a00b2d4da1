// Package node provides zero-copy readers and writers for the leaf and
// internal node byte layouts persisted to pages by pkg/tree and pkg/storage.
package node

import (
	"bytes"
	"encoding/binary"
)

// Type byte values for the two node kinds.
const (
	TypeLeaf     byte = 1
	TypeInternal byte = 2
)

// Comparator orders raw key bytes within a single table's key space.
// The default is byte-wise lexicographic; a table may install any other
// total order (see Key.Compare).
type Comparator func(a, b []byte) int

// DefaultComparator orders keys byte-wise lexicographically.
func DefaultComparator(a, b []byte) int { return bytes.Compare(a, b) }

// Key is the compound ordering key (table_id, key_bytes) described in §3.
type Key struct {
	TableID uint64
	Bytes   []byte
}

// Compare orders k against other under cmp, comparing TableID first.
func (k Key) Compare(other Key, cmp Comparator) int {
	if k.TableID != other.TableID {
		if k.TableID < other.TableID {
			return -1
		}
		return 1
	}
	if cmp == nil {
		cmp = DefaultComparator
	}
	return cmp(k.Bytes, other.Bytes)
}

// Entry is a decoded leaf entry: a key and its value bytes.
type Entry struct {
	Key   Key
	Value []byte
}

// entrySize returns the encoded byte length of e: key_len(8) + table_id(8)
// + key + value_len(8) + value.
func entrySize(e Entry) int {
	return 8 + 8 + len(e.Key.Bytes) + 8 + len(e.Value)
}

// emptyEntrySize is the encoded length of an absent "greater" slot:
// just the key_len(8) field, set to 0.
const emptyEntrySize = 8

// putEntry writes e into buf at offset 0 and returns the number of bytes
// written.
func putEntry(buf []byte, e Entry) int {
	binary.BigEndian.PutUint64(buf[0:8], uint64(len(e.Key.Bytes)))
	binary.BigEndian.PutUint64(buf[8:16], e.Key.TableID)
	off := 16
	copy(buf[off:off+len(e.Key.Bytes)], e.Key.Bytes)
	off += len(e.Key.Bytes)
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(len(e.Value)))
	off += 8
	copy(buf[off:off+len(e.Value)], e.Value)
	off += len(e.Value)
	return off
}

// putEmptyEntry writes an absent-entry marker (key_len = 0).
func putEmptyEntry(buf []byte) int {
	binary.BigEndian.PutUint64(buf[0:8], 0)
	return emptyEntrySize
}

// readEntry decodes one entry from buf at offset 0. ok is false when the
// slot is the empty/absent marker (key_len == 0); size is always the
// number of bytes consumed.
func readEntry(buf []byte) (e Entry, size int, ok bool) {
	keyLen := binary.BigEndian.Uint64(buf[0:8])
	if keyLen == 0 {
		return Entry{}, emptyEntrySize, false
	}
	tableID := binary.BigEndian.Uint64(buf[8:16])
	off := 16
	key := buf[off : off+int(keyLen)]
	off += int(keyLen)
	valLen := binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	val := buf[off : off+int(valLen)]
	off += int(valLen)
	return Entry{Key: Key{TableID: tableID, Bytes: key}, Value: val}, off, true
}

// LeafSize returns the encoded byte length of a leaf holding lesser and
// the optional greater entry (nil greater means an absent-entry marker).
func LeafSize(lesser Entry, greater *Entry) int {
	n := 1 + entrySize(lesser)
	if greater != nil {
		n += entrySize(*greater)
	} else {
		n += emptyEntrySize
	}
	return n
}

// WriteLeaf encodes a leaf node into buf and returns the bytes written.
func WriteLeaf(buf []byte, lesser Entry, greater *Entry) int {
	buf[0] = TypeLeaf
	off := 1
	off += putEntry(buf[off:], lesser)
	if greater != nil {
		off += putEntry(buf[off:], *greater)
	} else {
		off += putEmptyEntry(buf[off:])
	}
	return off
}

// Leaf is a read-only zero-copy view over an encoded leaf node.
type Leaf struct {
	buf []byte
}

// AsLeaf wraps buf (which must begin with TypeLeaf) as a Leaf view.
func AsLeaf(buf []byte) Leaf { return Leaf{buf: buf} }

// Lesser returns the leaf's mandatory first entry.
func (l Leaf) Lesser() Entry {
	e, _, _ := readEntry(l.buf[1:])
	return e
}

// Greater returns the leaf's optional second entry, and whether it is
// present.
func (l Leaf) Greater() (Entry, bool) {
	_, n, _ := readEntry(l.buf[1:])
	e, _, ok := readEntry(l.buf[1+n:])
	return e, ok
}

// Size returns the number of bytes this leaf occupies.
func (l Leaf) Size() int {
	_, n1, _ := readEntry(l.buf[1:])
	_, n2, _ := readEntry(l.buf[1+n1:])
	return 1 + n1 + n2
}

// InternalSize returns the encoded byte length of an internal node keyed
// on key.
func InternalSize(key Key) int {
	return 1 + 8 + 8 + len(key.Bytes) + 8 + 8
}

// WriteInternal encodes an internal node into buf and returns the bytes
// written. Keys in the subtree rooted at ltePage are <= key; keys rooted
// at gtPage are strictly greater.
func WriteInternal(buf []byte, key Key, ltePage, gtPage uint64) int {
	buf[0] = TypeInternal
	off := 1
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(len(key.Bytes)))
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], key.TableID)
	off += 8
	copy(buf[off:off+len(key.Bytes)], key.Bytes)
	off += len(key.Bytes)
	binary.BigEndian.PutUint64(buf[off:off+8], ltePage)
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], gtPage)
	off += 8
	return off
}

// Internal is a read-only zero-copy view over an encoded internal node.
type Internal struct {
	buf []byte
}

// AsInternal wraps buf (which must begin with TypeInternal) as an
// Internal view.
func AsInternal(buf []byte) Internal { return Internal{buf: buf} }

func (n Internal) keyLen() int { return int(binary.BigEndian.Uint64(n.buf[1:9])) }

// Key returns the node's pivot key.
func (n Internal) Key() Key {
	tableID := binary.BigEndian.Uint64(n.buf[9:17])
	kl := n.keyLen()
	return Key{TableID: tableID, Bytes: n.buf[17 : 17+kl]}
}

// LtePage returns the page number of the subtree whose keys are <= Key.
func (n Internal) LtePage() uint64 {
	off := 17 + n.keyLen()
	return binary.BigEndian.Uint64(n.buf[off : off+8])
}

// GtPage returns the page number of the subtree whose keys are > Key.
func (n Internal) GtPage() uint64 {
	off := 17 + n.keyLen() + 8
	return binary.BigEndian.Uint64(n.buf[off : off+8])
}

// Size returns the number of bytes this internal node occupies.
func (n Internal) Size() int { return 1 + 8 + 8 + n.keyLen() + 8 + 8 }

// Type reads the leading type byte of an encoded node.
func Type(buf []byte) byte { return buf[0] }
