package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/article-search/pkg/errors"
)

// ReadHeader parses and checks the fixed header without touching the body.
func ReadHeader(blob []byte) (Header, error) {
	if len(blob) < HeaderSize {
		return Header{}, apperrors.Malformed(fmt.Sprintf("blob is %d bytes, shorter than the %d byte header", len(blob), HeaderSize), nil)
	}
	header := Header{
		Magic:     binary.LittleEndian.Uint32(blob[0:4]),
		Version:   binary.LittleEndian.Uint32(blob[4:8]),
		Flags:     binary.LittleEndian.Uint32(blob[8:12]),
		Checksum:  binary.LittleEndian.Uint32(blob[12:16]),
		BodyLen:   binary.LittleEndian.Uint64(blob[16:24]),
		DocCount:  binary.LittleEndian.Uint32(blob[24:28]),
		TermCount: binary.LittleEndian.Uint32(blob[28:32]),
	}
	if header.Magic != MagicBytes {
		return Header{}, apperrors.Malformed(fmt.Sprintf("bad magic bytes %#08x", header.Magic), nil)
	}
	if header.Version != FormatVersion {
		return Header{}, &apperrors.DeserializeError{
			Kind:   apperrors.KindUnsupportedVersion,
			Reason: fmt.Sprintf("format version %d, supported %d", header.Version, FormatVersion),
		}
	}
	if header.Flags != 0 {
		return Header{}, apperrors.Malformed(fmt.Sprintf("unknown flags %#x", header.Flags), nil)
	}
	return header, nil
}

// Decode reverses Encode. It either returns a fully validated index or a
// *errors.DeserializeError; no partially decoded index is ever returned.
func Decode(blob []byte) (*index.InvertedIndex, error) {
	header, err := ReadHeader(blob)
	if err != nil {
		return nil, err
	}
	body := blob[HeaderSize:]
	if uint64(len(body)) != header.BodyLen {
		return nil, apperrors.Malformed(fmt.Sprintf("body is %d bytes, header declares %d", len(body), header.BodyLen), nil)
	}
	if sum := crc32.ChecksumIEEE(body); sum != header.Checksum {
		return nil, apperrors.Malformed(fmt.Sprintf("checksum mismatch: computed %08x, header %08x", sum, header.Checksum), nil)
	}

	var idx index.InvertedIndex
	if err := json.Unmarshal(body, &idx); err != nil {
		return nil, apperrors.Malformed("parsing body", err)
	}
	if uint64(idx.DocCount()) != uint64(header.DocCount) || uint64(idx.TermCount()) != uint64(header.TermCount) {
		return nil, apperrors.Malformed(fmt.Sprintf("body has %d docs and %d terms, header declares %d and %d",
			idx.DocCount(), idx.TermCount(), header.DocCount, header.TermCount), nil)
	}
	if err := validate(&idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

func validate(idx *index.InvertedIndex) error {
	if len(idx.Locales) == 0 {
		return apperrors.Malformed("no tokenizer locales recorded", nil)
	}
	if len(idx.Fields) == 0 {
		return apperrors.Malformed("no fields recorded", nil)
	}
	fieldNames := make(map[string]struct{}, len(idx.Fields))
	for _, field := range idx.Fields {
		if field.Name == "" {
			return apperrors.Malformed("empty field name", nil)
		}
		if _, dup := fieldNames[field.Name]; dup {
			return apperrors.Malformed(fmt.Sprintf("field %q recorded twice", field.Name), nil)
		}
		fieldNames[field.Name] = struct{}{}
	}

	docIDs := make(map[string]struct{}, len(idx.Docs))
	for i, doc := range idx.Docs {
		if doc.ID == "" {
			return apperrors.Malformed(fmt.Sprintf("document %d has no id", i), nil)
		}
		if _, dup := docIDs[doc.ID]; dup {
			return apperrors.Malformed(fmt.Sprintf("document id %q recorded twice", doc.ID), nil)
		}
		docIDs[doc.ID] = struct{}{}
		if len(doc.FieldLengths) != len(idx.Fields) {
			return apperrors.Malformed(fmt.Sprintf("document %q has %d field lengths for %d fields",
				doc.ID, len(doc.FieldLengths), len(idx.Fields)), nil)
		}
		for _, length := range doc.FieldLengths {
			if length < 0 {
				return apperrors.Malformed(fmt.Sprintf("document %q has a negative field length", doc.ID), nil)
			}
		}
	}

	for i, entry := range idx.Terms {
		if entry.Term == "" {
			return apperrors.Malformed(fmt.Sprintf("term %d is empty", i), nil)
		}
		if i > 0 && idx.Terms[i-1].Term >= entry.Term {
			return apperrors.Malformed(fmt.Sprintf("terms not strictly sorted at %q", entry.Term), nil)
		}
		if len(entry.Postings) == 0 {
			return apperrors.Malformed(fmt.Sprintf("term %q has no postings", entry.Term), nil)
		}
		for j, posting := range entry.Postings {
			if posting.Doc < 0 || posting.Doc >= len(idx.Docs) {
				return apperrors.Malformed(fmt.Sprintf("term %q references unknown document %d", entry.Term, posting.Doc), nil)
			}
			if posting.Field < 0 || posting.Field >= len(idx.Fields) {
				return apperrors.Malformed(fmt.Sprintf("term %q references unknown field %d", entry.Term, posting.Field), nil)
			}
			if posting.Frequency <= 0 {
				return apperrors.Malformed(fmt.Sprintf("term %q has a non-positive frequency", entry.Term), nil)
			}
			if j > 0 {
				prev := entry.Postings[j-1]
				if prev.Doc > posting.Doc || (prev.Doc == posting.Doc && prev.Field >= posting.Field) {
					return apperrors.Malformed(fmt.Sprintf("postings of term %q out of order", entry.Term), nil)
				}
			}
		}
	}
	return nil
}
