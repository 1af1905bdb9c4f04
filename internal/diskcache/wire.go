package diskcache

import (
	"golang.org/x/xerrors"
	"google.golang.org/protobuf/encoding/protowire"
)

// indexEntry is the on-disk representation of one cache entry. It is
// encoded/decoded directly with protowire rather than through a generated
// message type (see package doc comment): field numbers below are the wire
// contract and must not be renumbered.
type indexEntry struct {
	Key        string // Key.string()
	Kind       uint64 // 0 = bytes (content-addressed blob), 1 = summary
	Digest     []byte // sha256 of the blob, kind == bytes
	Size       uint64
	LastAccess int64
	// Summary fields, kind == summary
	SummaryMD5  []byte
	SummaryType string
}

const (
	fieldKey         = 1
	fieldKind        = 2
	fieldDigest      = 3
	fieldSize        = 4
	fieldLastAccess  = 5
	fieldSummaryMD5  = 6
	fieldSummaryType = 7
)

func (e *indexEntry) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
	b = protowire.AppendString(b, e.Key)
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, e.Kind)
	if len(e.Digest) > 0 {
		b = protowire.AppendTag(b, fieldDigest, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Digest)
	}
	b = protowire.AppendTag(b, fieldSize, protowire.VarintType)
	b = protowire.AppendVarint(b, e.Size)
	b = protowire.AppendTag(b, fieldLastAccess, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.LastAccess))
	if len(e.SummaryMD5) > 0 {
		b = protowire.AppendTag(b, fieldSummaryMD5, protowire.BytesType)
		b = protowire.AppendBytes(b, e.SummaryMD5)
	}
	if e.SummaryType != "" {
		b = protowire.AppendTag(b, fieldSummaryType, protowire.BytesType)
		b = protowire.AppendString(b, e.SummaryType)
	}
	return b
}

func unmarshalEntry(b []byte) (*indexEntry, error) {
	e := &indexEntry{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, xerrors.Errorf("diskcache: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldKey:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return nil, xerrors.Errorf("diskcache: bad key field: %w", protowire.ParseError(m))
			}
			e.Key = v
			b = b[m:]
		case fieldKind:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, xerrors.Errorf("diskcache: bad kind field: %w", protowire.ParseError(m))
			}
			e.Kind = v
			b = b[m:]
		case fieldDigest:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, xerrors.Errorf("diskcache: bad digest field: %w", protowire.ParseError(m))
			}
			e.Digest = append([]byte(nil), v...)
			b = b[m:]
		case fieldSize:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, xerrors.Errorf("diskcache: bad size field: %w", protowire.ParseError(m))
			}
			e.Size = v
			b = b[m:]
		case fieldLastAccess:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, xerrors.Errorf("diskcache: bad last_access field: %w", protowire.ParseError(m))
			}
			e.LastAccess = int64(v)
			b = b[m:]
		case fieldSummaryMD5:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, xerrors.Errorf("diskcache: bad summary_md5 field: %w", protowire.ParseError(m))
			}
			e.SummaryMD5 = append([]byte(nil), v...)
			b = b[m:]
		case fieldSummaryType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return nil, xerrors.Errorf("diskcache: bad summary_type field: %w", protowire.ParseError(m))
			}
			e.SummaryType = v
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return nil, xerrors.Errorf("diskcache: bad unknown field: %w", protowire.ParseError(m))
			}
			b = b[m:]
		}
	}
	return e, nil
}

// marshalIndex encodes entries as a sequence of length-delimited indexEntry
// messages, the way a repeated field of a top-level message would be
// framed on the wire.
func marshalIndex(entries []*indexEntry) []byte {
	var out []byte
	for _, e := range entries {
		rec := e.marshal()
		out = protowire.AppendVarint(out, uint64(len(rec)))
		out = append(out, rec...)
	}
	return out
}

func unmarshalIndex(b []byte) ([]*indexEntry, error) {
	var entries []*indexEntry
	for len(b) > 0 {
		l, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, xerrors.Errorf("diskcache: bad index length prefix: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if uint64(len(b)) < l {
			return nil, xerrors.Errorf("diskcache: truncated index record")
		}
		e, err := unmarshalEntry(b[:l])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		b = b[l:]
	}
	return entries, nil
}
