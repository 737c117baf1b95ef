package cache

import "encoding/gob"

// entryOverhead is a rough per-entry bookkeeping cost added to every estimate.
const entryOverhead = 96

type countingWriter struct {
	n uint64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += uint64(len(p))

	return len(p), nil
}

// approxSize estimates serialized entry size in bytes.
//
// Values that gob cannot encode are billed at bare overhead, caching still
// works for them.
func approxSize[V any](key string, v V) uint64 {
	size := entryOverhead + uint64(len(key))

	cw := countingWriter{}
	if err := gob.NewEncoder(&cw).Encode(&v); err != nil {
		return size
	}

	return size + cw.n
}
