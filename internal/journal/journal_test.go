package journal

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/geostorm/internal/engine/descriptor"
	"github.com/dshills/geostorm/internal/engine/feature"
	"github.com/dshills/geostorm/internal/engine/history"
	"github.com/dshills/geostorm/internal/engine/store"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir())
	require.Nil(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func snap(id feature.ID, g orb.Geometry, attrs feature.Attributes) feature.Snapshot {
	f := &feature.Feature{ID: id, Geometry: g, Attributes: attrs}
	return f.Snapshot()
}

// appliedRecord builds a committed transaction image the way the
// engine would hand one to the journal.
func appliedRecord(seq, parent uint64, label string, outs []history.Outcome) *history.Record {
	rec := history.NewRecord(seq, parent, label)
	rec.MarkApplied(outs, map[descriptor.Handle]feature.ID{})
	return rec
}

func TestOpenEmpty(t *testing.T) {
	j := openTestJournal(t)

	assert.Equal(t, uint64(0), j.LastSeq())
	n, err := j.Count()
	assert.Nil(t, err)
	assert.Equal(t, 0, n)

	_, err = j.Entry(1)
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestCommittedRoundTrip(t *testing.T) {
	j := openTestJournal(t)

	created := snap(1, orb.Point{2, 3}, feature.Attributes{
		"name": feature.String("alpha"),
		"rank": feature.Int(7),
	})
	rec := appliedRecord(1, 0, "create alpha", []history.Outcome{{
		Directive: 0,
		Kind:      descriptor.KindCreate,
		Created:   []history.Created{{Collection: "sites", Snapshot: created}},
	}})

	require.Nil(t, j.Committed(rec))
	assert.Equal(t, uint64(1), j.LastSeq())

	e, err := j.Entry(1)
	require.Nil(t, err)
	assert.Equal(t, uint64(1), e.Seq)
	assert.Equal(t, uint64(0), e.Parent)
	assert.Equal(t, "create alpha", e.Label)
	assert.Equal(t, StatusApplied, e.Status)
	require.Len(t, e.Outcomes, 1)
	require.Len(t, e.Outcomes[0].Created, 1)

	got := e.Outcomes[0].Created[0]
	assert.Equal(t, "sites", got.Collection)
	assert.Equal(t, feature.ID(1), got.Snapshot.ID)
	assert.True(t, orb.Equal(orb.Point{2, 3}, got.Snapshot.Geometry))
	assert.True(t, created.Attributes.Equal(got.Snapshot.Attributes))
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	require.Nil(t, err)

	rec := appliedRecord(1, 0, "move", []history.Outcome{{
		Directive: 0,
		Kind:      descriptor.KindTransform,
		Updated: []history.Updated{{
			Collection: "sites",
			Before:     snap(4, orb.Point{0, 0}, nil),
			After:      snap(4, orb.Point{10, 10}, nil),
		}},
	}})
	require.Nil(t, j.Committed(rec))
	require.Nil(t, j.Close())

	// Reopen forces the decode path; nothing is cached.
	j2, err := Open(dir)
	require.Nil(t, err)
	defer j2.Close()

	assert.Equal(t, uint64(1), j2.LastSeq())
	e, err := j2.Entry(1)
	require.Nil(t, err)
	assert.Equal(t, "move", e.Label)
	require.Len(t, e.Outcomes, 1)
	require.Len(t, e.Outcomes[0].Updated, 1)

	u := e.Outcomes[0].Updated[0]
	assert.Equal(t, feature.ID(4), u.Before.ID)
	assert.True(t, orb.Equal(orb.Point{0, 0}, u.Before.Geometry))
	assert.True(t, orb.Equal(orb.Point{10, 10}, u.After.Geometry))
	assert.Equal(t, rec.When.UnixNano(), e.When.UnixNano())
}

func TestUndoneRedoneMarkers(t *testing.T) {
	j := openTestJournal(t)

	rec := appliedRecord(1, 0, "op", []history.Outcome{{
		Kind:    descriptor.KindDelete,
		Removed: []history.Removed{{Collection: "sites", Snapshot: snap(2, orb.Point{1, 1}, nil)}},
	}})
	require.Nil(t, j.Committed(rec))

	require.Nil(t, j.Undone(1))
	st, err := j.Status(1)
	require.Nil(t, err)
	assert.Equal(t, StatusUndone, st)
	e, err := j.Entry(1)
	require.Nil(t, err)
	assert.Equal(t, StatusUndone, e.Status)

	require.Nil(t, j.Redone(1))
	st, err = j.Status(1)
	require.Nil(t, err)
	assert.Equal(t, StatusApplied, st)

	assert.ErrorIs(t, j.Undone(99), ErrNoEntry)
	assert.ErrorIs(t, j.Redone(0), ErrNoEntry)
}

func TestScanOrderAndBounds(t *testing.T) {
	j := openTestJournal(t)

	for seq := uint64(1); seq <= 5; seq++ {
		rec := appliedRecord(seq, 0, "op", []history.Outcome{{
			Kind:    descriptor.KindCreate,
			Created: []history.Created{{Collection: "a", Snapshot: snap(feature.ID(seq), orb.Point{0, 0}, nil)}},
		}})
		require.Nil(t, j.Committed(rec))
	}

	var seen []uint64
	err := j.Scan(2, 4, func(e *Entry) bool {
		seen = append(seen, e.Seq)
		return true
	})
	require.Nil(t, err)
	assert.Equal(t, []uint64{2, 3, 4}, seen)

	// Early stop.
	seen = seen[:0]
	err = j.Scan(0, 0, func(e *Entry) bool {
		seen = append(seen, e.Seq)
		return e.Seq < 2
	})
	require.Nil(t, err)
	assert.Equal(t, []uint64{1, 2}, seen)

	n, err := j.Count()
	require.Nil(t, err)
	assert.Equal(t, 5, n)
}

func TestSummaries(t *testing.T) {
	j := openTestJournal(t)

	rec := appliedRecord(1, 0, "mixed", []history.Outcome{
		{
			Kind:    descriptor.KindCreate,
			Created: []history.Created{{Collection: "a", Snapshot: snap(1, orb.Point{0, 0}, nil)}},
		},
		{
			Kind: descriptor.KindTransform,
			Updated: []history.Updated{
				{Collection: "a", Before: snap(1, orb.Point{0, 0}, nil), After: snap(1, orb.Point{1, 1}, nil)},
				{Collection: "b", Before: snap(2, orb.Point{0, 0}, nil), After: snap(2, orb.Point{1, 1}, nil)},
			},
		},
	})
	require.Nil(t, j.Committed(rec))
	require.Nil(t, j.Undone(1))

	sums, err := j.Summaries(0, 0)
	require.Nil(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, uint64(1), sums[0].Seq)
	assert.Equal(t, "mixed", sums[0].Label)
	assert.Equal(t, StatusUndone, sums[0].Status)
	assert.Equal(t, 2, sums[0].Directives)
	assert.Equal(t, 3, sums[0].Touched)
}

func TestReplayRebuildsStore(t *testing.T) {
	j := openTestJournal(t)

	// seq 1: create two features
	require.Nil(t, j.Committed(appliedRecord(1, 0, "create", []history.Outcome{{
		Kind: descriptor.KindCreate,
		Created: []history.Created{
			{Collection: "sites", Snapshot: snap(1, orb.Point{1, 1}, feature.Attributes{"name": feature.String("a")})},
			{Collection: "sites", Snapshot: snap(2, orb.Point{2, 2}, nil)},
		},
	}})))

	// seq 2: move feature 1
	require.Nil(t, j.Committed(appliedRecord(2, 0, "move", []history.Outcome{{
		Kind: descriptor.KindTransform,
		Updated: []history.Updated{{
			Collection: "sites",
			Before:     snap(1, orb.Point{1, 1}, feature.Attributes{"name": feature.String("a")}),
			After:      snap(1, orb.Point{5, 5}, feature.Attributes{"name": feature.String("a")}),
		}},
	}})))

	// seq 3: delete feature 2
	require.Nil(t, j.Committed(appliedRecord(3, 0, "delete", []history.Outcome{{
		Kind:    descriptor.KindDelete,
		Removed: []history.Removed{{Collection: "sites", Snapshot: snap(2, orb.Point{2, 2}, nil)}},
	}})))

	st := store.NewStore()
	last, applied, err := j.Replay(st)
	require.Nil(t, err)
	assert.Equal(t, uint64(3), last)
	assert.Equal(t, 3, applied)

	c, err := st.Collection("sites")
	require.Nil(t, err)
	assert.Equal(t, 1, c.Count())

	f, err := c.Get(1)
	require.Nil(t, err)
	assert.True(t, orb.Equal(orb.Point{5, 5}, f.Geometry))
	assert.False(t, c.Has(2))

	// Identifier allocation resumes past replayed ids.
	fresh, err := c.Put(&feature.Feature{Geometry: orb.Point{9, 9}})
	require.Nil(t, err)
	assert.Equal(t, feature.ID(3), fresh.ID)
}

func TestReplaySkipsUndone(t *testing.T) {
	j := openTestJournal(t)

	require.Nil(t, j.Committed(appliedRecord(1, 0, "create", []history.Outcome{{
		Kind:    descriptor.KindCreate,
		Created: []history.Created{{Collection: "sites", Snapshot: snap(1, orb.Point{1, 1}, nil)}},
	}})))
	require.Nil(t, j.Committed(appliedRecord(2, 0, "create more", []history.Outcome{{
		Kind:    descriptor.KindCreate,
		Created: []history.Created{{Collection: "sites", Snapshot: snap(2, orb.Point{2, 2}, nil)}},
	}})))
	require.Nil(t, j.Undone(2))

	st := store.NewStore()
	last, applied, err := j.Replay(st)
	require.Nil(t, err)
	assert.Equal(t, uint64(2), last)
	assert.Equal(t, 1, applied)

	c, err := st.Collection("sites")
	require.Nil(t, err)
	assert.True(t, c.Has(1))
	assert.False(t, c.Has(2))
}

func TestReplayToPointInTime(t *testing.T) {
	j := openTestJournal(t)

	require.Nil(t, j.Committed(appliedRecord(1, 0, "create", []history.Outcome{{
		Kind:    descriptor.KindCreate,
		Created: []history.Created{{Collection: "sites", Snapshot: snap(1, orb.Point{1, 1}, nil)}},
	}})))
	require.Nil(t, j.Committed(appliedRecord(2, 0, "delete", []history.Outcome{{
		Kind:    descriptor.KindDelete,
		Removed: []history.Removed{{Collection: "sites", Snapshot: snap(1, orb.Point{1, 1}, nil)}},
	}})))

	st := store.NewStore()
	last, applied, err := j.ReplayTo(st, 1)
	require.Nil(t, err)
	assert.Equal(t, uint64(1), last)
	assert.Equal(t, 1, applied)

	c, err := st.Collection("sites")
	require.Nil(t, err)
	assert.True(t, c.Has(1))
}

func TestHoseReceivesPackets(t *testing.T) {
	j := openTestJournal(t)
	feed := j.AddHose("tap")

	rec := appliedRecord(1, 0, "create", []history.Outcome{{
		Kind:    descriptor.KindCreate,
		Created: []history.Created{{Collection: "sites", Snapshot: snap(1, orb.Point{1, 1}, nil)}},
	}})
	require.Nil(t, j.Committed(rec))

	recs, err := feed.Feed()
	require.Nil(t, err)
	require.Len(t, recs, 1)

	e, err := decodePacket(recs[0])
	require.Nil(t, err)
	assert.Equal(t, uint64(1), e.Seq)
	assert.Equal(t, "create", e.Label)

	require.Nil(t, j.RemoveHose("tap"))
	j.Broadcast(nil, "") // no-op once detached
}

func TestStats(t *testing.T) {
	j := openTestJournal(t)

	require.Nil(t, j.Committed(appliedRecord(1, 0, "a", []history.Outcome{{
		Kind:    descriptor.KindCreate,
		Created: []history.Created{{Collection: "x", Snapshot: snap(1, orb.Point{0, 0}, nil)}},
	}})))
	require.Nil(t, j.Undone(1))

	stats := j.Stats()
	assert.Equal(t, uint64(1), stats.LastSeq)
	assert.Equal(t, uint64(1), stats.Appended)
	assert.Equal(t, uint64(1), stats.Marked)
}

func TestClosedJournalRejects(t *testing.T) {
	j, err := Open(t.TempDir())
	require.Nil(t, err)
	require.Nil(t, j.Close())

	assert.ErrorIs(t, j.Close(), ErrClosed)
	assert.ErrorIs(t, j.Committed(appliedRecord(1, 0, "x", nil)), ErrClosed)
	assert.ErrorIs(t, j.Undone(1), ErrClosed)
	_, err = j.Entry(1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEntryTimes(t *testing.T) {
	j := openTestJournal(t)

	before := time.Now().Add(-time.Second)
	require.Nil(t, j.Committed(appliedRecord(1, 0, "x", []history.Outcome{{
		Kind:    descriptor.KindCreate,
		Created: []history.Created{{Collection: "x", Snapshot: snap(1, orb.Point{0, 0}, nil)}},
	}})))

	e, err := j.Entry(1)
	require.Nil(t, err)
	assert.True(t, e.When.After(before))
}
