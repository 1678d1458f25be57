package heap

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/joshuapare/heapkit/heap/regions"
	"github.com/joshuapare/heapkit/internal/format"
)

// Strings are a fixed-size header cell pointing at a payload entry (sdata)
// in a separate payload block. Each entry starts with a back pointer to its
// header, so payload blocks can be compacted and the headers patched
// without moving the headers themselves. A back pointer of 0 marks a dead
// entry.

// sblock is a string payload block. Small blocks are filled by bumping
// used; a large block holds exactly one entry.
type sblock struct {
	chunk *chunk
	used  int
	large bool
}

type stringData struct {
	small []*sblock // oldest first; the last one takes new entries
	large []*sblock

	compactions uint64
	bytesMoved  int64
}

// allocSdata reserves a payload entry for n bytes and returns its address.
// The entry starts out dead (back pointer 0).
func (h *Heap) allocSdata(n int) (uint64, error) {
	need := format.SdataBytes(n)
	if n > format.LargeStringBytes {
		c, err := h.allocChunk(need, regions.TypeNone)
		if err != nil {
			return 0, err
		}
		sb := &sblock{chunk: c, used: need, large: true}
		c.sblock = sb
		h.strs.large = append(h.strs.large, sb)
		return c.base(), nil
	}

	var cur *sblock
	if k := len(h.strs.small); k > 0 {
		cur = h.strs.small[k-1]
	}
	if cur == nil || cur.used+need > format.SblockSize {
		c, err := h.allocChunk(format.SblockSize, regions.TypeNone)
		if err != nil {
			return 0, err
		}
		cur = &sblock{chunk: c}
		c.sblock = cur
		h.strs.small = append(h.strs.small, cur)
	}
	addr := format.Addr(cur.chunk.id, cur.used)
	cur.used += need
	h.setWord(addr+format.SdataBackOffset, 0)
	h.setWord(addr+format.SdataBytesOffset, uint64(n))
	return addr, nil
}

// MakeString allocates a string holding s. Text with non-ASCII characters
// in valid UTF-8 becomes multibyte; anything else is stored unibyte.
func (h *Heap) MakeString(s string) (Value, error) {
	if isASCII(s) || !utf8.ValidString(s) {
		return h.makeString([]byte(s), len(s), false)
	}
	return h.makeString([]byte(s), utf8.RuneCountInString(s), true)
}

// MakeUnibyteString allocates a unibyte string holding a copy of b.
func (h *Heap) MakeUnibyteString(b []byte) (Value, error) {
	return h.makeString(b, len(b), false)
}

func (h *Heap) makeString(b []byte, chars int, multibyte bool) (Value, error) {
	if err := h.beginAlloc(); err != nil {
		return 0, err
	}
	entry, err := h.allocSdata(len(b))
	if err != nil {
		return 0, err
	}
	addr, err := h.allocCell(&h.strHeaders)
	if err != nil {
		// The entry stays dead and goes away at the next compaction.
		return 0, err
	}

	h.setWord(entry+format.SdataBackOffset, addr)
	h.setWord(entry+format.SdataBytesOffset, uint64(len(b)))
	data := entry + format.SdataHeaderSize
	copy(h.bytesAt(data, len(b)), b)
	h.initStringHeader(addr, chars, len(b), multibyte, data)

	h.noteAlloc(KindString, format.StringHeaderSize+format.SdataBytes(len(b)))
	return makeRef(addr, TagString), nil
}

func (h *Heap) initStringHeader(addr uint64, chars, nbytes int, multibyte bool, data uint64) {
	sizeByte := int64(-1)
	if multibyte {
		sizeByte = int64(nbytes)
	}
	h.setWord(addr+format.StringSizeOffset, uint64(chars))
	h.setSignedWord(addr+format.StringSizeByteOffset, sizeByte)
	h.setWord(addr+format.StringDataOffset, data)
}

type stringInfo struct {
	addr      uint64
	data      uint64
	chars     int
	nbytes    int
	multibyte bool
}

func (h *Heap) stringInfo(op string, v Value) (stringInfo, error) {
	addr, err := h.objectAddr(op, v, KindString)
	if err != nil {
		return stringInfo{}, err
	}
	data := h.word(addr + format.StringDataOffset)
	return stringInfo{
		addr:      addr,
		data:      data,
		chars:     int(h.word(addr+format.StringSizeOffset) &^ format.MarkFlag),
		nbytes:    int(h.word(data - format.SdataHeaderSize + format.SdataBytesOffset)),
		multibyte: h.signedWord(addr+format.StringSizeByteOffset) >= 0,
	}, nil
}

// StringBytes returns a copy of a string's bytes.
func (h *Heap) StringBytes(v Value) ([]byte, error) {
	si, err := h.stringInfo("string-bytes", v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, si.nbytes)
	copy(out, h.bytesAt(si.data, si.nbytes))
	return out, nil
}

// StringText returns a string's text as UTF-8. Unibyte strings are read as
// Latin-1.
func (h *Heap) StringText(v Value) (string, error) {
	si, err := h.stringInfo("string-text", v)
	if err != nil {
		return "", err
	}
	b := h.bytesAt(si.data, si.nbytes)
	if si.multibyte || isASCII(string(b)) {
		return string(b), nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// StringLen returns a string's length in characters.
func (h *Heap) StringLen(v Value) (int, error) {
	si, err := h.stringInfo("length", v)
	return si.chars, err
}

// StringMultibyte reports whether a string is multibyte.
func (h *Heap) StringMultibyte(v Value) (bool, error) {
	si, err := h.stringInfo("multibyte-string-p", v)
	return si.multibyte, err
}

// StringToMultibyte returns a multibyte string with the same characters as
// v. Unibyte bytes are read as Latin-1; a string that is already multibyte
// or pure ASCII is returned as is.
func (h *Heap) StringToMultibyte(v Value) (Value, error) {
	si, err := h.stringInfo("string-to-multibyte", v)
	if err != nil {
		return 0, err
	}
	raw := h.bytesAt(si.data, si.nbytes)
	if si.multibyte || isASCII(string(raw)) {
		return v, nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return 0, err
	}
	return h.makeString(out, utf8.RuneCount(out), true)
}

// StringToUnibyte returns a unibyte string with the same characters as v.
// Characters above U+00FF cannot be represented.
func (h *Heap) StringToUnibyte(v Value) (Value, error) {
	si, err := h.stringInfo("string-to-unibyte", v)
	if err != nil {
		return 0, err
	}
	if !si.multibyte {
		return v, nil
	}
	out, err := charmap.ISO8859_1.NewEncoder().Bytes(h.bytesAt(si.data, si.nbytes))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotUnibyte, err)
	}
	return h.makeString(out, len(out), false)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

/******************** Sweep ********************/

// sweepStrings frees unmarked headers, kills their payload entries, then
// compacts the small payload blocks and drops payload blocks left empty.
func (h *Heap) sweepStrings(rep *Report) {
	rep.Freed[KindString] += h.sweepCells(&h.strHeaders, func(addr uint64) {
		entry := h.word(addr+format.StringDataOffset) - format.SdataHeaderSize
		n := int(h.word(entry + format.SdataBytesOffset))
		h.setWord(entry+format.SdataBackOffset, 0)
		h.counters[KindString].liveBytes -= int64(format.SdataBytes(n))
	})

	keep := h.strs.large[:0]
	for _, sb := range h.strs.large {
		if h.word(sb.chunk.base()+format.SdataBackOffset) == 0 {
			h.freeChunk(sb.chunk)
			rep.SblocksFreed++
			continue
		}
		keep = append(keep, sb)
	}
	clear(h.strs.large[len(keep):])
	h.strs.large = keep

	h.compactStrings(rep)
}

// compactStrings slides every live payload entry toward the front of the
// small payload blocks, in order, rewriting each owner's data pointer.
// Blocks past the last one still holding data are released.
func (h *Heap) compactStrings(rep *Report) {
	small := h.strs.small
	if len(small) == 0 {
		return
	}
	toIdx, toOff := 0, 0
	to := small[0]
	for _, from := range small {
		for off := 0; off < from.used; {
			back := format.ReadWord(from.chunk.mem, off+format.SdataBackOffset)
			n := int(format.ReadWord(from.chunk.mem, off+format.SdataBytesOffset))
			size := format.SdataBytes(n)
			if back != 0 {
				if toOff+size > format.SblockSize {
					to.used = toOff
					toIdx++
					to = small[toIdx]
					toOff = 0
				}
				if to != from || toOff != off {
					copy(to.chunk.mem[toOff:toOff+size], from.chunk.mem[off:off+size])
					h.setWord(back+format.StringDataOffset,
						format.Addr(to.chunk.id, toOff+format.SdataHeaderSize))
					rep.StringBytesMoved += int64(size)
				}
				toOff += size
			}
			off += size
		}
	}
	to.used = toOff
	for _, sb := range small[toIdx+1:] {
		h.freeChunk(sb.chunk)
		rep.SblocksFreed++
	}
	clear(small[toIdx+1:])
	h.strs.small = small[:toIdx+1]
	h.strs.compactions++
	h.strs.bytesMoved += rep.StringBytesMoved
}
