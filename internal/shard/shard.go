package shard

import (
	"encoding/binary"
	"hash/maphash"

	"golang.org/x/crypto/blake2b"
)

// Keyer is implemented by keys that know their own routing representation.
type Keyer interface {
	RoutingKey() string
}

// Hasher turns routing keys into 64-bit sums. A Hasher never changes after
// construction, so the same key always yields the same sum for its lifetime.
type Hasher struct {
	seed  string
	local maphash.Seed
}

func NewHasher(seed string) *Hasher {
	return &Hasher{seed: seed, local: maphash.MakeSeed()}
}

// Bytes hashes b with blake2b, personalised by the seed.
func (h *Hasher) Bytes(b []byte) uint64 {
	d, _ := blake2b.New(8, nil)
	if h.seed != "" {
		d.Write([]byte(h.seed))
		d.Write([]byte{0})
	}
	d.Write(b)
	return binary.BigEndian.Uint64(d.Sum(nil))
}

func (h *Hasher) String(s string) uint64 { return h.Bytes([]byte(s)) }

func (h *Hasher) Uint64(v uint64) uint64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return h.Bytes(buf[:])
}

// Sum hashes key. Strings, integers and Keyer values hash the same way in
// every process sharing a seed; any other comparable key falls back to a
// process-local seed and is only stable for this Hasher. Sum panics if key
// is an interface holding a non-comparable value such as a slice.
func Sum[K comparable](h *Hasher, key K) uint64 {
	switch k := any(key).(type) {
	case Keyer:
		return h.String(k.RoutingKey())
	case string:
		return h.String(k)
	case int:
		return h.Uint64(uint64(k))
	case int8:
		return h.Uint64(uint64(k))
	case int16:
		return h.Uint64(uint64(k))
	case int32:
		return h.Uint64(uint64(k))
	case int64:
		return h.Uint64(uint64(k))
	case uint:
		return h.Uint64(uint64(k))
	case uint8:
		return h.Uint64(uint64(k))
	case uint16:
		return h.Uint64(uint64(k))
	case uint32:
		return h.Uint64(uint64(k))
	case uint64:
		return h.Uint64(k)
	case uintptr:
		return h.Uint64(uint64(k))
	default:
		return maphash.Comparable(h.local, key)
	}
}

// Index reduces sum onto [0, count). count must be positive.
func Index(sum uint64, count int) int {
	return int(sum % uint64(count))
}
