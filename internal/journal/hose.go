package journal

import (
	"github.com/learn-decentralized-systems/toyqueue"
)

// AddHose attaches a named packet hose and returns its feed end. Every
// packet the journal appends or broadcasts from now on is drained into
// the hose; the consumer reads with Feed, which blocks until packets
// arrive or the hose closes. Attaching under an existing name closes
// the old hose first.
func (j *Journal) AddHose(name string) toyqueue.FeedCloser {
	queue := &toyqueue.RecordQueue{Limit: j.hoseLimit}
	j.outlock.Lock()
	old := j.outq[name]
	j.outq[name] = queue
	j.outlock.Unlock()
	if old != nil {
		j.log.Debug("journal hose replaced", "name", name)
		_ = old.Close()
	}
	return queue.Blocking()
}

// RemoveHose detaches a named hose and closes it. The consumer's next
// Feed returns the close error.
func (j *Journal) RemoveHose(name string) error {
	j.outlock.Lock()
	q := j.outq[name]
	delete(j.outq, name)
	j.outlock.Unlock()
	if q != nil {
		_ = q.Close()
	}
	return nil
}

// Broadcast drains records into every attached hose except the named
// one. A hose that fails to accept is dropped.
func (j *Journal) Broadcast(records toyqueue.Records, except string) {
	j.outlock.Lock()
	for name, hose := range j.outq {
		if name == except {
			continue
		}
		if err := hose.Drain(records); err != nil {
			j.log.Warn("journal hose dropped", "name", name, "err", err)
			delete(j.outq, name)
		}
	}
	j.outlock.Unlock()
}
