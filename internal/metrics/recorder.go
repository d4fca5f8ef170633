package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cas-go/internal/cas"
)

const namespace = "cas"

// Recorder collects storage core counters on its own registry. The CLI is
// short-lived, so the registry is written to a node_exporter textfile
// instead of being scraped.
type Recorder struct {
	registry *prometheus.Registry

	chunksStored    prometheus.Counter
	bytesStored     prometheus.Counter
	dedupHits       prometheus.Counter
	bytesDeduped    prometheus.Counter
	chunksReclaimed prometheus.Counter
	bytesReclaimed  prometheus.Counter
	uploads         *prometheus.CounterVec
	uploadDuration  prometheus.Histogram
	retries         *prometheus.CounterVec
}

// NewRecorder creates a recorder with a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		chunksStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chunks",
			Name:      "stored_total",
			Help:      "Chunks written to the vault",
		}),
		bytesStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chunks",
			Name:      "stored_bytes_total",
			Help:      "Bytes written to the vault",
		}),
		dedupHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chunks",
			Name:      "dedup_hits_total",
			Help:      "Chunks that matched existing content",
		}),
		bytesDeduped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chunks",
			Name:      "dedup_bytes_total",
			Help:      "Bytes not written because the chunk already existed",
		}),
		chunksReclaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chunks",
			Name:      "reclaimed_total",
			Help:      "Chunks deleted from the vault after losing their last reference",
		}),
		bytesReclaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chunks",
			Name:      "reclaimed_bytes_total",
			Help:      "Bytes deleted from the vault",
		}),
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uploads",
			Name:      "finished_total",
			Help:      "Uploads by terminal state",
		}, []string{"state"}),
		uploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "uploads",
			Name:      "duration_seconds",
			Help:      "Upload duration from start to terminal state",
			Buckets:   prometheus.DefBuckets,
		}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "retries_total",
			Help:      "Storage operations retried after a transient failure",
		}, []string{"op"}),
	}
}

func (r *Recorder) ChunkStored(size int64) {
	r.chunksStored.Inc()
	r.bytesStored.Add(float64(size))
}

func (r *Recorder) DedupHit(size int64) {
	r.dedupHits.Inc()
	r.bytesDeduped.Add(float64(size))
}

func (r *Recorder) ChunkReclaimed(size int64) {
	r.chunksReclaimed.Inc()
	r.bytesReclaimed.Add(float64(size))
}

func (r *Recorder) UploadFinished(state string, elapsed time.Duration) {
	r.uploads.WithLabelValues(state).Inc()
	r.uploadDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) RetryAttempted(op string) {
	r.retries.WithLabelValues(op).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the current values in the text exposition format.
// The write is atomic, so a collector never reads a partial file.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// Compile-time check that Recorder implements cas.Metrics interface
var _ cas.Metrics = (*Recorder)(nil)
