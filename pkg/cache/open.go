package cache

import (
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/codetree/pkg/persist"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend      string
	Dir          string
	Codec        string
	MaxEntrySize int64
}

// Open returns the backend named by opts.Backend.
func Open(opts Options) (Store, error) {
	dir := opts.Dir
	if dir == "" {
		dir = DefaultDir()
	}

	backend := strings.ToLower(strings.TrimSpace(opts.Backend))

	if backend == BackendMemory {
		return NewMemory(DefaultMemoryEntries), nil
	}

	codec, err := persist.ParseCodec(opts.Codec)
	if err != nil {
		return nil, err
	}

	switch backend {
	case BackendBolt, "":
		return OpenBolt(dir, codec, opts.MaxEntrySize)
	case BackendFile:
		return OpenFile(dir, codec)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
