package history

import (
	"log/slog"
	"time"
)

// Options configure the store. Nil backends are simply not used.
type Options struct {
	Logger    *slog.Logger
	Limit     int
	SQLite    *SQLiteOptions
	JetStream *JetStreamOptions
}

// SQLiteOptions describe the durable local history database.
type SQLiteOptions struct {
	Path string
	// Outputs longer than CompressOver bytes are stored zstd-compressed.
	CompressOver int
}

// JetStreamOptions describe how executions are mirrored to NATS JetStream.
type JetStreamOptions struct {
	URL           string
	User          string
	Password      string
	SubjectPrefix string
	Stream        string
	MaxBytes      int64
	DupeWindow    time.Duration
}

func (o *Options) setDefaults() {
	if o.Limit <= 0 {
		o.Limit = 500
	}
}

func (o *SQLiteOptions) setDefaults() {
	if o.CompressOver <= 0 {
		o.CompressOver = 4096
	}
}

func (o *JetStreamOptions) setDefaults() {
	if o.SubjectPrefix == "" {
		o.SubjectPrefix = "logwise"
	}
	if o.Stream == "" {
		o.Stream = "logwise_history"
	}
	if o.MaxBytes == 0 {
		o.MaxBytes = 1024 * 1024 * 1024 // 1GB
	}
	if o.DupeWindow == 0 {
		o.DupeWindow = 2 * time.Minute
	}
}
