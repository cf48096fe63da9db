package codec

import (
	"sort"
	"sync"
)

// DefaultMaxMessageSize bounds a single wire line.
const DefaultMaxMessageSize = 1 << 20

// registry implements Registry interface
type registry struct {
	mu       sync.RWMutex
	codecs   map[string]Codec
	default_ string
}

// NewRegistry creates a registry holding the text and compressed codecs,
// text being the default.
func NewRegistry() Registry {
	r := &registry{
		codecs: make(map[string]Codec),
	}

	r.Register(NewTextCodec(DefaultMaxMessageSize))
	r.Register(NewCompressedCodec(DefaultMaxMessageSize))
	r.default_ = TextName

	return r
}

// Register registers a codec under its name
func (r *registry) Register(codec Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[codec.Name()] = codec
}

// Get retrieves a codec by name
func (r *registry) Get(name string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codec, exists := r.codecs[name]
	return codec, exists
}

// Default returns the default codec
func (r *registry) Default() Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.codecs[r.default_]
}

// SetDefault switches the default to a registered codec.
func (r *registry) SetDefault(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codecs[name]; !ok {
		return false
	}
	r.default_ = name
	return true
}

func (r *registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.codecs))
	for n := range r.codecs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
