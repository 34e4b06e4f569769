package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/learn-decentralized-systems/toytlv"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/dshills/geostorm/internal/engine/descriptor"
	"github.com/dshills/geostorm/internal/engine/feature"
	"github.com/dshills/geostorm/internal/engine/history"
)

// TLV literals of the journal wire format. A transaction packet nests
// outcome records, which nest full feature images; geometry travels as
// WKB, attributes as type-tagged JSON.
const (
	litPacket byte = 'T'
	litUndone byte = 'N'
	litRedone byte = 'R'

	litSeq     byte = 'Q'
	litParent  byte = 'P'
	litLabel   byte = 'L'
	litWhen    byte = 'W'
	litOutcome byte = 'O'

	litIndex   byte = 'X'
	litKind    byte = 'K'
	litCreated byte = 'C'
	litUpdated byte = 'U'
	litRemoved byte = 'D'

	litFeature    byte = 'F'
	litCollection byte = 'M'
	litID         byte = 'I'
	litGeometry   byte = 'G'
	litAttrs      byte = 'A'
)

func u64bytes(u uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], u)
	return buf[:]
}

func takeU64(body []byte) (uint64, error) {
	if len(body) != 8 {
		return 0, fmt.Errorf("%w: want 8 byte integer, got %d", ErrBadPacket, len(body))
	}
	return binary.BigEndian.Uint64(body), nil
}

// ============================================================================
// Encoding
// ============================================================================

func encodeRecord(rec *history.Record) ([]byte, error) {
	outs := rec.Outcomes()
	parts := make([][]byte, 0, 4+len(outs))
	parts = append(parts,
		toytlv.Record(litSeq, u64bytes(rec.Seq)),
		toytlv.Record(litParent, u64bytes(rec.Parent)),
		toytlv.Record(litLabel, []byte(rec.Label)),
		toytlv.Record(litWhen, u64bytes(uint64(rec.When.UnixNano()))),
	)
	for _, o := range outs {
		enc, err := encodeOutcome(o)
		if err != nil {
			return nil, err
		}
		parts = append(parts, enc)
	}
	return toytlv.Record(litPacket, parts...), nil
}

func encodeOutcome(o history.Outcome) ([]byte, error) {
	parts := make([][]byte, 0, 2+len(o.Created)+len(o.Updated)+len(o.Removed))
	parts = append(parts,
		toytlv.Record(litIndex, binary.AppendUvarint(nil, uint64(o.Directive))),
		toytlv.Record(litKind, []byte{byte(o.Kind)}),
	)
	for _, c := range o.Created {
		enc, err := encodeSnapshot(c.Collection, c.Snapshot)
		if err != nil {
			return nil, err
		}
		parts = append(parts, toytlv.Record(litCreated, enc))
	}
	for _, u := range o.Updated {
		before, err := encodeSnapshot(u.Collection, u.Before)
		if err != nil {
			return nil, err
		}
		after, err := encodeSnapshot(u.Collection, u.After)
		if err != nil {
			return nil, err
		}
		parts = append(parts, toytlv.Record(litUpdated, before, after))
	}
	for _, r := range o.Removed {
		enc, err := encodeSnapshot(r.Collection, r.Snapshot)
		if err != nil {
			return nil, err
		}
		parts = append(parts, toytlv.Record(litRemoved, enc))
	}
	return toytlv.Record(litOutcome, parts...), nil
}

func encodeSnapshot(collection string, s feature.Snapshot) ([]byte, error) {
	parts := make([][]byte, 0, 4)
	parts = append(parts,
		toytlv.Record(litCollection, []byte(collection)),
		toytlv.Record(litID, u64bytes(uint64(s.ID))),
	)
	if s.Geometry != nil {
		raw, err := wkb.Marshal(s.Geometry)
		if err != nil {
			return nil, fmt.Errorf("encode geometry %s/%d: %w", collection, s.ID, err)
		}
		parts = append(parts, toytlv.Record(litGeometry, raw))
	}
	if len(s.Attributes) > 0 {
		raw, err := json.Marshal(s.Attributes)
		if err != nil {
			return nil, fmt.Errorf("encode attributes %s/%d: %w", collection, s.ID, err)
		}
		parts = append(parts, toytlv.Record(litAttrs, raw))
	}
	return toytlv.Record(litFeature, parts...), nil
}

func entryFromRecord(rec *history.Record) *Entry {
	return &Entry{
		Seq:      rec.Seq,
		Parent:   rec.Parent,
		Label:    rec.Label,
		When:     rec.When,
		Status:   StatusApplied,
		Outcomes: rec.Outcomes(),
	}
}

// ============================================================================
// Decoding
// ============================================================================

func decodePacket(data []byte) (*Entry, error) {
	body, _, err := toytlv.TakeWary(litPacket, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPacket, err)
	}
	e := &Entry{Status: StatusApplied}
	rest := body
	for len(rest) > 0 {
		var lit byte
		var rec []byte
		lit, rec, rest, err = toytlv.TakeAnyWary(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPacket, err)
		}
		switch lit {
		case litSeq:
			if e.Seq, err = takeU64(rec); err != nil {
				return nil, err
			}
		case litParent:
			if e.Parent, err = takeU64(rec); err != nil {
				return nil, err
			}
		case litLabel:
			e.Label = string(rec)
		case litWhen:
			u, uerr := takeU64(rec)
			if uerr != nil {
				return nil, uerr
			}
			e.When = time.Unix(0, int64(u))
		case litOutcome:
			o, oerr := decodeOutcome(rec)
			if oerr != nil {
				return nil, oerr
			}
			e.Outcomes = append(e.Outcomes, o)
		default:
			// Unknown record, skip. Lets older readers walk newer logs.
		}
	}
	if e.Seq == 0 {
		return nil, fmt.Errorf("%w: missing sequence", ErrBadPacket)
	}
	return e, nil
}

func decodeOutcome(body []byte) (history.Outcome, error) {
	var o history.Outcome
	rest := body
	for len(rest) > 0 {
		var lit byte
		var rec []byte
		var err error
		lit, rec, rest, err = toytlv.TakeAnyWary(rest)
		if err != nil {
			return o, fmt.Errorf("%w: %v", ErrBadPacket, err)
		}
		switch lit {
		case litIndex:
			u, n := binary.Uvarint(rec)
			if n <= 0 {
				return o, fmt.Errorf("%w: directive index", ErrBadPacket)
			}
			o.Directive = int(u)
		case litKind:
			if len(rec) != 1 {
				return o, fmt.Errorf("%w: directive kind", ErrBadPacket)
			}
			o.Kind = descriptor.Kind(rec[0])
		case litCreated:
			col, snap, err := decodeOneSnapshot(rec)
			if err != nil {
				return o, err
			}
			o.Created = append(o.Created, history.Created{Collection: col, Snapshot: snap})
		case litUpdated:
			col, before, tail, err := decodeSnapshot(rec)
			if err != nil {
				return o, err
			}
			colAfter, after, tail, err := decodeSnapshot(tail)
			if err != nil {
				return o, err
			}
			if col != colAfter || len(tail) != 0 {
				return o, fmt.Errorf("%w: update images", ErrBadPacket)
			}
			o.Updated = append(o.Updated, history.Updated{Collection: col, Before: before, After: after})
		case litRemoved:
			col, snap, err := decodeOneSnapshot(rec)
			if err != nil {
				return o, err
			}
			o.Removed = append(o.Removed, history.Removed{Collection: col, Snapshot: snap})
		default:
			// skip unknown
		}
	}
	return o, nil
}

func decodeOneSnapshot(data []byte) (string, feature.Snapshot, error) {
	col, snap, rest, err := decodeSnapshot(data)
	if err != nil {
		return "", feature.Snapshot{}, err
	}
	if len(rest) != 0 {
		return "", feature.Snapshot{}, fmt.Errorf("%w: trailing snapshot bytes", ErrBadPacket)
	}
	return col, snap, nil
}

func decodeSnapshot(data []byte) (string, feature.Snapshot, []byte, error) {
	var snap feature.Snapshot
	body, rest, err := toytlv.TakeWary(litFeature, data)
	if err != nil {
		return "", snap, nil, fmt.Errorf("%w: %v", ErrBadPacket, err)
	}
	var col string
	inner := body
	for len(inner) > 0 {
		var lit byte
		var rec []byte
		lit, rec, inner, err = toytlv.TakeAnyWary(inner)
		if err != nil {
			return "", snap, nil, fmt.Errorf("%w: %v", ErrBadPacket, err)
		}
		switch lit {
		case litCollection:
			col = string(rec)
		case litID:
			u, uerr := takeU64(rec)
			if uerr != nil {
				return "", snap, nil, uerr
			}
			snap.ID = feature.ID(u)
		case litGeometry:
			g, gerr := wkb.Unmarshal(rec)
			if gerr != nil {
				return "", snap, nil, fmt.Errorf("%w: geometry: %v", ErrBadPacket, gerr)
			}
			snap.Geometry = g
		case litAttrs:
			var attrs feature.Attributes
			if jerr := json.Unmarshal(rec, &attrs); jerr != nil {
				return "", snap, nil, fmt.Errorf("%w: attributes: %v", ErrBadPacket, jerr)
			}
			snap.Attributes = attrs
		default:
			// skip unknown
		}
	}
	if col == "" {
		return "", snap, nil, fmt.Errorf("%w: missing collection", ErrBadPacket)
	}
	return col, snap, rest, nil
}
