package journal

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes journal counters and the health of the backing
// pebble store as Prometheus metrics. Register it on the process
// registry next to the engine collector.
type Collector struct {
	j *Journal

	// Journal descriptors
	appended *prometheus.Desc
	marked   *prometheus.Desc
	replayed *prometheus.Desc
	lastSeq  *prometheus.Desc
	cached   *prometheus.Desc
	hoses    *prometheus.Desc

	// Backing store descriptors
	compactionCount *prometheus.Desc
	compactionDebt  *prometheus.Desc
	memtableSize    *prometheus.Desc
	memtableCount   *prometheus.Desc
	walFiles        *prometheus.Desc
	walSize         *prometheus.Desc
	walBytesWritten *prometheus.Desc
	diskUsage       *prometheus.Desc
}

// NewCollector creates a collector over the journal.
func NewCollector(j *Journal) *Collector {
	return &Collector{
		j: j,

		appended: prometheus.NewDesc(
			"geostorm_journal_appended_total",
			"Total number of transactions appended to the journal",
			nil, nil,
		),
		marked: prometheus.NewDesc(
			"geostorm_journal_marks_total",
			"Total number of undo/redo status markers written",
			nil, nil,
		),
		replayed: prometheus.NewDesc(
			"geostorm_journal_replayed_total",
			"Total number of transactions re-applied by replay",
			nil, nil,
		),
		lastSeq: prometheus.NewDesc(
			"geostorm_journal_last_seq",
			"Highest transaction sequence number recorded",
			nil, nil,
		),
		cached: prometheus.NewDesc(
			"geostorm_journal_entries_cached",
			"Decoded journal entries held in the in-memory cache",
			nil, nil,
		),
		hoses: prometheus.NewDesc(
			"geostorm_journal_hoses",
			"Packet hoses currently attached",
			nil, nil,
		),

		compactionCount: prometheus.NewDesc(
			"geostorm_journal_pebble_compaction_count_total",
			"Total number of compactions performed by the backing store",
			nil, nil,
		),
		compactionDebt: prometheus.NewDesc(
			"geostorm_journal_pebble_compaction_estimated_debt_bytes",
			"Estimated bytes the backing store needs to compact to reach a stable state",
			nil, nil,
		),
		memtableSize: prometheus.NewDesc(
			"geostorm_journal_pebble_memtable_size_bytes",
			"Current size of the backing store memtable in bytes",
			nil, nil,
		),
		memtableCount: prometheus.NewDesc(
			"geostorm_journal_pebble_memtable_count",
			"Current count of backing store memtables",
			nil, nil,
		),
		walFiles: prometheus.NewDesc(
			"geostorm_journal_pebble_wal_files",
			"Number of live WAL files",
			nil, nil,
		),
		walSize: prometheus.NewDesc(
			"geostorm_journal_pebble_wal_size_bytes",
			"Size of the WAL in bytes",
			nil, nil,
		),
		walBytesWritten: prometheus.NewDesc(
			"geostorm_journal_pebble_wal_bytes_written_total",
			"Total bytes written to the WAL",
			nil, nil,
		),
		diskUsage: prometheus.NewDesc(
			"geostorm_journal_pebble_disk_usage_bytes",
			"Total disk space used by the backing store",
			nil, nil,
		),
	}
}

// Describe sends all metric descriptors to the channel.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.appended
	ch <- c.marked
	ch <- c.replayed
	ch <- c.lastSeq
	ch <- c.cached
	ch <- c.hoses
	ch <- c.compactionCount
	ch <- c.compactionDebt
	ch <- c.memtableSize
	ch <- c.memtableCount
	ch <- c.walFiles
	ch <- c.walSize
	ch <- c.walBytesWritten
	ch <- c.diskUsage
}

// Collect gathers current metric values.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.j.Stats()

	ch <- prometheus.MustNewConstMetric(
		c.appended,
		prometheus.CounterValue,
		float64(stats.Appended),
	)
	ch <- prometheus.MustNewConstMetric(
		c.marked,
		prometheus.CounterValue,
		float64(stats.Marked),
	)
	ch <- prometheus.MustNewConstMetric(
		c.replayed,
		prometheus.CounterValue,
		float64(stats.Replayed),
	)
	ch <- prometheus.MustNewConstMetric(
		c.lastSeq,
		prometheus.GaugeValue,
		float64(stats.LastSeq),
	)
	ch <- prometheus.MustNewConstMetric(
		c.cached,
		prometheus.GaugeValue,
		float64(stats.Cached),
	)
	ch <- prometheus.MustNewConstMetric(
		c.hoses,
		prometheus.GaugeValue,
		float64(stats.Hoses),
	)

	metrics := c.j.db.Metrics()

	ch <- prometheus.MustNewConstMetric(
		c.compactionCount,
		prometheus.CounterValue,
		float64(metrics.Compact.Count),
	)
	ch <- prometheus.MustNewConstMetric(
		c.compactionDebt,
		prometheus.GaugeValue,
		float64(metrics.Compact.EstimatedDebt),
	)
	ch <- prometheus.MustNewConstMetric(
		c.memtableSize,
		prometheus.GaugeValue,
		float64(metrics.MemTable.Size),
	)
	ch <- prometheus.MustNewConstMetric(
		c.memtableCount,
		prometheus.GaugeValue,
		float64(metrics.MemTable.Count),
	)
	ch <- prometheus.MustNewConstMetric(
		c.walFiles,
		prometheus.GaugeValue,
		float64(metrics.WAL.Files),
	)
	ch <- prometheus.MustNewConstMetric(
		c.walSize,
		prometheus.GaugeValue,
		float64(metrics.WAL.Size),
	)
	ch <- prometheus.MustNewConstMetric(
		c.walBytesWritten,
		prometheus.CounterValue,
		float64(metrics.WAL.BytesWritten),
	)
	ch <- prometheus.MustNewConstMetric(
		c.diskUsage,
		prometheus.GaugeValue,
		float64(metrics.DiskSpaceUsage()),
	)
}
