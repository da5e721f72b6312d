package recordcache

import (
	"github.com/hupe1980/recordcache/indexmap"
	"github.com/hupe1980/recordcache/internal/compress"
)

const (
	// DefaultEvictionPercent is the share of entries Evict removes.
	DefaultEvictionPercent = 20
)

// Compression selects how payloads are stored in the arena.
type Compression = compress.Type

// Payload compression algorithms.
const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
	CompressionZSTD = compress.ZSTD
)

// MaxCompressedPayload is the largest content Put accepts when compression
// is enabled. Larger content fails with ErrPayloadTooLarge.
const MaxCompressedPayload = compress.MaxDecodedSize

// ErrPayloadTooLarge is returned by Put for content above MaxCompressedPayload.
var ErrPayloadTooLarge = compress.ErrTooLarge

type options struct {
	clusterID       int32
	evictionSize    int
	evictionPercent int
	compression     Compression
	flusher         Flusher
	logger          *Logger
	metrics         MetricsCollector
	indexOptions    []indexmap.Option
}

func defaultOptions() options {
	return options{
		evictionSize:    -1,
		evictionPercent: DefaultEvictionPercent,
		logger:          NoopLogger(),
		metrics:         NoopMetricsCollector{},
	}
}

// Option configures a Cache.
type Option func(*options)

// WithClusterID sets the cluster id reported to flushers.
func WithClusterID(id int32) Option {
	return func(o *options) {
		o.clusterID = id
	}
}

// WithEvictionSize caps the number of entries. Once reached, Put refuses new
// keys (or evicts first when a default flusher is configured). A value <= 0
// disables the cap.
func WithEvictionSize(n int) Option {
	return func(o *options) {
		o.evictionSize = n
	}
}

// WithEvictionPercent sets the share of entries Evict and
// EvictSharedRecordsOnly remove.
func WithEvictionPercent(percent int) Option {
	return func(o *options) {
		o.evictionPercent = percent
	}
}

// WithCompression compresses payloads inside the arena. Flushers and Get
// always see uncompressed content.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithFlusher sets the flusher used by automatic eviction and by PutOrEvict
// when it is given a nil flusher.
func WithFlusher(f Flusher) Option {
	return func(o *options) {
		o.flusher = f
	}
}

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics collector. If nil is passed,
// metrics are discarded.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}

// WithIndexOptions configures the underlying arena-backed hash index.
func WithIndexOptions(opts ...indexmap.Option) Option {
	return func(o *options) {
		o.indexOptions = append(o.indexOptions, opts...)
	}
}
