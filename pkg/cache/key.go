package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Key is a content-addressed cache key
type Key string

// KeyBuilder derives a Key from an operation id, its parameters and the
// content of its input arrays.
type KeyBuilder struct {
	op     string
	params []byte
	parts  []keyPart
}

type keyPart struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Len  int    `json:"len,omitempty"`
	Hash uint64 `json:"hash,omitempty"`
	Text string `json:"text,omitempty"`
}

// NewKey starts a key for the given operation
func NewKey(op string) *KeyBuilder {
	return &KeyBuilder{op: op}
}

// Params adds the serialized parameter set
func (b *KeyBuilder) Params(p any) *KeyBuilder {
	data, err := json.Marshal(p)
	if err != nil {
		// NaN or Inf parameters cannot be JSON encoded; fmt output is still deterministic
		data = []byte(fmt.Sprintf("%#v", p))
	}
	b.params = data
	return b
}

// Floats adds the content hash of an input array
func (b *KeyBuilder) Floats(name string, v []float64) *KeyBuilder {
	b.parts = append(b.parts, keyPart{Name: name, Kind: "f64", Len: len(v), Hash: HashFloats(v)})
	return b
}

// String adds a literal component
func (b *KeyBuilder) String(name, v string) *KeyBuilder {
	b.parts = append(b.parts, keyPart{Name: name, Kind: "str", Text: v})
	return b
}

// Int adds an integer component
func (b *KeyBuilder) Int(name string, v int) *KeyBuilder {
	return b.String(name, fmt.Sprintf("%d", v))
}

// Key returns the hex encoded SHA-256 of all components
func (b *KeyBuilder) Key() Key {
	data, _ := json.Marshal(map[string]interface{}{
		"op":     b.op,
		"params": string(b.params),
		"parts":  b.parts,
	})

	hash := sha256.Sum256(data)
	return Key(fmt.Sprintf("%x", hash))
}

// canonicalNaN makes every NaN payload hash the same
var canonicalNaN = math.Float64bits(math.NaN())

// HashFloats returns the xxhash of the IEEE-754 bit patterns of v
func HashFloats(v []float64) uint64 {
	d := xxhash.New()

	var buf [4096]byte
	n := 0
	for _, f := range v {
		bits := math.Float64bits(f)
		if f != f {
			bits = canonicalNaN
		}
		binary.LittleEndian.PutUint64(buf[n:], bits)
		n += 8
		if n == len(buf) {
			_, _ = d.Write(buf[:n])
			n = 0
		}
	}
	if n > 0 {
		_, _ = d.Write(buf[:n])
	}

	return d.Sum64()
}
