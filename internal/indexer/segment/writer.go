// Package segment defines the binary format of a serialized index: a fixed
// little-endian header followed by a self-describing JSON body.
//
//	offset size field
//	0      4    magic "ASRX"
//	4      4    format version
//	8      4    flags (reserved, zero)
//	12     4    CRC-32 (IEEE) of the body
//	16     8    body length in bytes
//	24     4    document count
//	28     4    term count
//	32     -    body
package segment

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/index"
)

const (
	MagicBytes    uint32 = 0x58525341 // "ASRX" read as little-endian
	FormatVersion uint32 = 1
	HeaderSize    int    = 32
)

// Header is the fixed prefix of every blob.
type Header struct {
	Magic     uint32
	Version   uint32
	Flags     uint32
	Checksum  uint32
	BodyLen   uint64
	DocCount  uint32
	TermCount uint32
}

func (h Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Flags)
	binary.LittleEndian.PutUint32(buf[12:16], h.Checksum)
	binary.LittleEndian.PutUint64(buf[16:24], h.BodyLen)
	binary.LittleEndian.PutUint32(buf[24:28], h.DocCount)
	binary.LittleEndian.PutUint32(buf[28:32], h.TermCount)
	return buf
}

// Encode serializes idx. The output is deterministic for a given index.
func Encode(idx *index.InvertedIndex) ([]byte, error) {
	if idx == nil {
		return nil, fmt.Errorf("cannot encode nil index")
	}
	if idx.DocCount() > math.MaxUint32 || idx.TermCount() > math.MaxUint32 {
		return nil, fmt.Errorf("index too large to encode: %d docs, %d terms", idx.DocCount(), idx.TermCount())
	}

	var body bytes.Buffer
	encoder := json.NewEncoder(&body)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(idx); err != nil {
		return nil, fmt.Errorf("marshaling index body: %w", err)
	}

	header := Header{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		Checksum:  crc32.ChecksumIEEE(body.Bytes()),
		BodyLen:   uint64(body.Len()),
		DocCount:  uint32(idx.DocCount()),
		TermCount: uint32(idx.TermCount()),
	}
	blob := make([]byte, 0, HeaderSize+body.Len())
	blob = append(blob, header.marshal()...)
	blob = append(blob, body.Bytes()...)
	return blob, nil
}
