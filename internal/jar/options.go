package jar

import (
	"runtime"

	"github.com/klauspost/compress/flate"
	"go.uber.org/zap"
)

// Options configures a jar merge.
type Options struct {
	Workers int
	Level   int // deflate level for output entries
	Logger  *zap.Logger
}

// Option is a functional option for configuring Merge.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Workers: runtime.GOMAXPROCS(0),
		Level:   flate.BestCompression,
		Logger:  zap.NewNop(),
	}
}

// WithWorkers sets the number of parallel class merges.
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Workers = n
		}
	}
}

// WithCompressionLevel sets the deflate level for output entries.
func WithCompressionLevel(level int) Option {
	return func(o *Options) { o.Level = level }
}

// WithLogger sets the logger for merge progress.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}
