package snapshot

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/errors"
)

// Binary layout, all integers little endian:
//
//	header   64 bytes  magic, version, flags, counts, section offsets
//	meta     CBOR      parameters, doc lengths and the term dictionary
//	postings varint    per term: (doc id delta, tf) pairs, optionally zstd
//	footer   8 bytes   crc32 of meta, crc32 of the stored postings block
const (
	HeaderSize = 64
	FooterSize = 8

	flagZstd uint32 = 1 << 0

	// maxPostingsSize caps the uncompressed postings block. The decoder
	// enforces it while inflating, so the header's declared size is never
	// trusted for an allocation.
	maxPostingsSize = 1 << 31

	// maxPreallocRatio bounds the buffer reserved before inflating to a
	// multiple of the stored block, which the postings checksum covers.
	maxPreallocRatio = 16
)

var magic = [4]byte{'B', 'M', '2', '5'}

type header struct {
	Version     uint32
	Flags       uint32
	TermCount   uint32
	DocCount    uint32
	MetaOffset  uint64
	MetaSize    uint64
	PostOffset  uint64
	PostSize    uint64
	PostRawSize uint64
}

func (h header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Flags)
	binary.LittleEndian.PutUint32(buf[12:16], h.TermCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.DocCount)
	binary.LittleEndian.PutUint64(buf[24:32], h.MetaOffset)
	binary.LittleEndian.PutUint64(buf[32:40], h.MetaSize)
	binary.LittleEndian.PutUint64(buf[40:48], h.PostOffset)
	binary.LittleEndian.PutUint64(buf[48:56], h.PostSize)
	binary.LittleEndian.PutUint64(buf[56:64], h.PostRawSize)
	return buf
}

func parseHeader(buf []byte) header {
	return header{
		Version:     binary.LittleEndian.Uint32(buf[4:8]),
		Flags:       binary.LittleEndian.Uint32(buf[8:12]),
		TermCount:   binary.LittleEndian.Uint32(buf[12:16]),
		DocCount:    binary.LittleEndian.Uint32(buf[16:20]),
		MetaOffset:  binary.LittleEndian.Uint64(buf[24:32]),
		MetaSize:    binary.LittleEndian.Uint64(buf[32:40]),
		PostOffset:  binary.LittleEndian.Uint64(buf[40:48]),
		PostSize:    binary.LittleEndian.Uint64(buf[48:56]),
		PostRawSize: binary.LittleEndian.Uint64(buf[56:64]),
	}
}

// binaryMeta uses pointers for fields without a safe default so a
// dictionary lacking them is rejected rather than zero-filled.
type binaryMeta struct {
	Mode         *string     `cbor:"1,keyasint"`
	K1           *float64    `cbor:"2,keyasint"`
	B            *float64    `cbor:"3,keyasint"`
	AvgDocLength *float64    `cbor:"4,keyasint"`
	Fingerprint  string      `cbor:"5,keyasint,omitempty"`
	DocLengths   []int       `cbor:"6,keyasint"`
	Dict         []dictEntry `cbor:"7,keyasint"`
}

func (m binaryMeta) check() error {
	switch {
	case m.Mode == nil:
		return missingField("mode")
	case m.K1 == nil:
		return missingField("k1")
	case m.B == nil:
		return missingField("b")
	case m.AvgDocLength == nil:
		return missingField("avg_doc_length")
	}
	return nil
}

// dictEntry locates a term's postings inside the uncompressed postings block.
type dictEntry struct {
	Term    string `cbor:"1,keyasint"`
	Offset  uint64 `cbor:"2,keyasint"`
	Length  uint64 `cbor:"3,keyasint"`
	DocFreq int    `cbor:"4,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPostingsSize))
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

type binaryCodec struct {
	compress bool
}

func (binaryCodec) Format() Format { return FormatBinary }

func (c binaryCodec) Encode(idx *index.Index) ([]byte, error) {
	entries := idx.Entries()
	params := idx.Params()
	mode, avgdl := string(idx.Mode()), idx.AvgDocLength()
	meta := binaryMeta{
		Mode:         &mode,
		K1:           &params.K1,
		B:            &params.B,
		AvgDocLength: &avgdl,
		Fingerprint:  idx.Fingerprint(),
		DocLengths:   idx.DocLengths(),
		Dict:         make([]dictEntry, 0, len(entries)),
	}

	var postings []byte
	for _, e := range entries {
		start := len(postings)
		prev := 0
		for _, p := range e.Postings {
			postings = binary.AppendUvarint(postings, uint64(p.DocID-prev))
			postings = binary.AppendUvarint(postings, uint64(p.Frequency))
			prev = p.DocID
		}
		meta.Dict = append(meta.Dict, dictEntry{
			Term:    e.Term,
			Offset:  uint64(start),
			Length:  uint64(len(postings) - start),
			DocFreq: len(e.Postings),
		})
	}

	metaData, err := encMode.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot dictionary: %w", err)
	}

	h := header{
		Version:     Version,
		TermCount:   uint32(len(entries)),
		DocCount:    uint32(idx.TotalDocs()),
		MetaOffset:  HeaderSize,
		MetaSize:    uint64(len(metaData)),
		PostRawSize: uint64(len(postings)),
	}
	stored := postings
	if c.compress {
		h.Flags |= flagZstd
		stored = zstdEncoder.EncodeAll(postings, nil)
	}
	h.PostOffset = h.MetaOffset + h.MetaSize
	h.PostSize = uint64(len(stored))

	out := make([]byte, 0, HeaderSize+len(metaData)+len(stored)+FooterSize)
	out = append(out, h.marshal()...)
	out = append(out, metaData...)
	out = append(out, stored...)
	out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(metaData))
	out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(stored))
	return out, nil
}

func (binaryCodec) Decode(data []byte) (*index.Index, error) {
	if len(data) < HeaderSize+FooterSize {
		return nil, apperrors.Corrupt("header", "snapshot is %d bytes, shorter than header and footer", len(data))
	}
	if [4]byte(data[0:4]) != magic {
		return nil, apperrors.Corrupt("magic", "bad magic bytes %x", data[0:4])
	}
	h := parseHeader(data[:HeaderSize])
	if err := checkVersion(int(h.Version)); err != nil {
		return nil, err
	}
	if h.Flags&^flagZstd != 0 {
		return nil, apperrors.Corrupt("flags", "unknown flags %#x", h.Flags)
	}

	body := uint64(len(data) - FooterSize)
	if h.MetaOffset != HeaderSize || h.MetaSize > body-h.MetaOffset ||
		h.PostOffset != h.MetaOffset+h.MetaSize || h.PostSize != body-h.PostOffset {
		return nil, apperrors.Corrupt("header", "section offsets do not match a %d byte snapshot", len(data))
	}
	metaData := data[h.MetaOffset:h.PostOffset]
	stored := data[h.PostOffset:body]
	footer := data[body:]
	if crc32.ChecksumIEEE(metaData) != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, apperrors.Corrupt("checksum", "dictionary checksum mismatch")
	}
	if crc32.ChecksumIEEE(stored) != binary.LittleEndian.Uint32(footer[4:8]) {
		return nil, apperrors.Corrupt("checksum", "postings checksum mismatch")
	}

	var meta binaryMeta
	if err := decMode.Unmarshal(metaData, &meta); err != nil {
		return nil, apperrors.Corrupt("dictionary", "%v", err)
	}
	if err := meta.check(); err != nil {
		return nil, err
	}
	if uint32(len(meta.Dict)) != h.TermCount {
		return nil, apperrors.Corrupt("dictionary", "header declares %d terms, dictionary has %d", h.TermCount, len(meta.Dict))
	}

	postings := stored
	if h.Flags&flagZstd != 0 {
		if h.PostRawSize > maxPostingsSize {
			return nil, apperrors.Corrupt("postings", "declared size %d too large", h.PostRawSize)
		}
		var err error
		postings, err = zstdDecoder.DecodeAll(stored, make([]byte, 0, preallocSize(h.PostRawSize, len(stored))))
		if err != nil {
			return nil, apperrors.Corrupt("postings", "zstd decompress: %v", err)
		}
	}
	if uint64(len(postings)) != h.PostRawSize {
		return nil, apperrors.Corrupt("postings", "got %d bytes, header declares %d", len(postings), h.PostRawSize)
	}

	entries := make([]index.TermEntry, 0, len(meta.Dict))
	for _, d := range meta.Dict {
		pl, err := decodePostings(postings, d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, index.TermEntry{Term: d.Term, Postings: pl})
	}
	docLengths := meta.DocLengths
	if docLengths == nil {
		docLengths = []int{}
	}
	return index.FromEntries(index.Meta{
		Mode:         tokenizer.Mode(*meta.Mode),
		Params:       index.Params{K1: *meta.K1, B: *meta.B},
		DocCount:     int(h.DocCount),
		DocLengths:   docLengths,
		AvgDocLength: *meta.AvgDocLength,
		Fingerprint:  meta.Fingerprint,
	}, entries)
}

// preallocSize is the declared raw size, clamped to a multiple of the
// checksummed stored size.
func preallocSize(declared uint64, stored int) uint64 {
	return min(declared, uint64(stored)*maxPreallocRatio)
}

func decodePostings(block []byte, d dictEntry) (index.PostingList, error) {
	if d.Offset > uint64(len(block)) || d.Length > uint64(len(block))-d.Offset {
		return nil, apperrors.Corrupt("postings", "term %q postings out of bounds", d.Term)
	}
	if d.DocFreq <= 0 || uint64(d.DocFreq) > d.Length {
		return nil, apperrors.Corrupt("postings", "term %q has implausible df %d", d.Term, d.DocFreq)
	}
	buf := block[d.Offset : d.Offset+d.Length]
	pl := make(index.PostingList, 0, d.DocFreq)
	doc := uint64(0)
	for i := 0; i < d.DocFreq; i++ {
		delta, n := binary.Uvarint(buf)
		if n <= 0 {
			return nil, apperrors.Corrupt("postings", "term %q: bad doc id varint", d.Term)
		}
		buf = buf[n:]
		tf, n := binary.Uvarint(buf)
		if n <= 0 {
			return nil, apperrors.Corrupt("postings", "term %q: bad tf varint", d.Term)
		}
		buf = buf[n:]
		if i > 0 && delta == 0 {
			return nil, apperrors.Corrupt("postings", "term %q: repeated doc id", d.Term)
		}
		doc += delta
		if doc > uint64(^uint32(0)) || tf > uint64(^uint32(0)) {
			return nil, apperrors.Corrupt("postings", "term %q: value out of range", d.Term)
		}
		pl = append(pl, index.Posting{DocID: int(doc), Frequency: int(tf)})
	}
	if len(buf) != 0 {
		return nil, apperrors.Corrupt("postings", "term %q: %d trailing bytes", d.Term, len(buf))
	}
	return pl, nil
}
