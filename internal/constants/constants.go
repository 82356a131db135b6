package constants

import "time"

const (
	RowsCacheTTL     = 10 * time.Minute
	MetadataCacheTTL = 0 // raid metadata is loaded once per session
)

const (
	ExternalAPITimeout = 30 * time.Second
	RequestTimeout     = 60 * time.Second
	LoadTimeout        = 2 * time.Minute
)

const (
	// StreamChunkSize bounds a single chunk handed to the decoder.
	StreamChunkSize  = 64 * 1024
	ExportMaxConns   = 32
	ExportReadBuffer = 16 * 1024
)

const (
	DefaultBucketWidth = 300
	DefaultMinSamples  = 0
	MaxBucketWidth     = 1_000_000

	// MaxBuckets bounds the rank rows of one heatmap.
	MaxBuckets = 20_000
)

const (
	ShutdownTimeout = 5 * time.Second
)
