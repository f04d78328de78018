package tiff

import (
	"fmt"
	"sort"
)

// entry is one IFD field with its value already encoded in the file's byte
// order. Values longer than the inline slot are relocated to the pointer
// area that follows the entry table.
type entry struct {
	tag   uint16
	typ   uint16
	count uint64
	data  []byte
}

func (w *Writer) put16(buf []byte, v uint16) []byte {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func (w *Writer) put32(buf []byte, v uint32) []byte {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func (w *Writer) put64(buf []byte, v uint64) []byte {
	var b [8]byte
	w.order.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func (w *Writer) entryShorts(tag uint16, vals ...uint16) entry {
	data := make([]byte, 2*len(vals))
	for i, v := range vals {
		w.order.PutUint16(data[2*i:], v)
	}
	return entry{tag: tag, typ: typeShort, count: uint64(len(vals)), data: data}
}

func (w *Writer) entryLongs(tag uint16, vals ...uint32) entry {
	data := make([]byte, 4*len(vals))
	for i, v := range vals {
		w.order.PutUint32(data[4*i:], v)
	}
	return entry{tag: tag, typ: typeLong, count: uint64(len(vals)), data: data}
}

func (w *Writer) entryLong8s(tag, typ uint16, vals ...uint64) entry {
	data := make([]byte, 8*len(vals))
	for i, v := range vals {
		w.order.PutUint64(data[8*i:], v)
	}
	return entry{tag: tag, typ: typ, count: uint64(len(vals)), data: data}
}

// entryOffsets encodes an offset/byte-count array with the width the file
// format allows: LONG8 for BigTIFF, LONG for classic TIFF.
func (w *Writer) entryOffsets(tag uint16, vals []uint64) (entry, error) {
	if w.big {
		return w.entryLong8s(tag, typeLong8, vals...), nil
	}
	v32 := make([]uint32, len(vals))
	for i, v := range vals {
		if v > maxUint32 {
			return entry{}, fmt.Errorf("tiff: offset %d exceeds 32-bit classic TIFF addressing, enable BigTIFF", v)
		}
		v32[i] = uint32(v)
	}
	return w.entryLongs(tag, v32...), nil
}

func entryASCII(tag uint16, s string) entry {
	data := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: uint64(len(data)), data: data}
}

const maxUint32 = 0xffffffff

// layout sizes that differ between classic TIFF and BigTIFF.
func (w *Writer) entrySize() int {
	if w.big {
		return 20
	}
	return 12
}

func (w *Writer) countSize() int {
	if w.big {
		return 8
	}
	return 2
}

func (w *Writer) offsetSize() int {
	if w.big {
		return 8
	}
	return 4
}

// inlineSize is the number of value bytes that fit directly in an entry.
func (w *Writer) inlineSize() int {
	return w.offsetSize()
}

func padEven(n int) int {
	return n + n%2
}

// ifdSize returns the encoded size of an IFD block: entry table, next-IFD
// pointer and the trailing pointer area for out-of-line values.
func (w *Writer) ifdSize(entries []entry) uint64 {
	size := w.countSize() + len(entries)*w.entrySize() + w.offsetSize()
	for _, e := range entries {
		if len(e.data) > w.inlineSize() {
			size += padEven(len(e.data))
		}
	}
	return uint64(size)
}

// encodeIFD serializes an IFD placed at offset base in the file. Out-of-line
// values land immediately after the entry table, padded to even offsets.
// nextIFD is the file offset of the following IFD in the page chain, or 0.
func (w *Writer) encodeIFD(entries []entry, base, nextIFD uint64) ([]byte, error) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	tableLen := w.countSize() + len(entries)*w.entrySize() + w.offsetSize()
	buf := make([]byte, 0, int(w.ifdSize(entries)))

	if w.big {
		buf = w.put64(buf, uint64(len(entries)))
	} else {
		buf = w.put16(buf, uint16(len(entries)))
	}

	extra := make([]byte, 0)
	for _, e := range entries {
		buf = w.put16(buf, e.tag)
		buf = w.put16(buf, e.typ)
		if w.big {
			buf = w.put64(buf, e.count)
		} else {
			if e.count > maxUint32 {
				return nil, fmt.Errorf("tiff: tag %d count %d exceeds classic TIFF limits", e.tag, e.count)
			}
			buf = w.put32(buf, uint32(e.count))
		}

		inline := w.inlineSize()
		if len(e.data) <= inline {
			val := make([]byte, inline)
			copy(val, e.data)
			buf = append(buf, val...)
			continue
		}

		off := base + uint64(tableLen) + uint64(len(extra))
		if w.big {
			buf = w.put64(buf, off)
		} else {
			if off > maxUint32 {
				return nil, fmt.Errorf("tiff: value offset %d exceeds 32-bit classic TIFF addressing, enable BigTIFF", off)
			}
			buf = w.put32(buf, uint32(off))
		}
		extra = append(extra, e.data...)
		if len(e.data)%2 != 0 {
			extra = append(extra, 0)
		}
	}

	if w.big {
		buf = w.put64(buf, nextIFD)
	} else {
		if nextIFD > maxUint32 {
			return nil, fmt.Errorf("tiff: next IFD offset %d exceeds 32-bit classic TIFF addressing", nextIFD)
		}
		buf = w.put32(buf, uint32(nextIFD))
	}

	return append(buf, extra...), nil
}
