package hashutil

import (
	"encoding/binary"
	"encoding/hex"
	"hash"
	"io"
	"math"
	"os"

	"lukechampine.com/blake3"
)

func Blake3Hash(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Blake3File hashes the content of the file at path.
func Blake3File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Digest accumulates strings, integers and float32 slices into a single
// blake3 sum. Every write is length-prefixed so that ("ab","c") and
// ("a","bc") hash differently.
type Digest struct {
	h   hash.Hash
	buf [8]byte
}

func NewDigest() *Digest {
	return &Digest{h: blake3.New(32, nil)}
}

func (d *Digest) String(s string) *Digest {
	d.Int(len(s))
	io.WriteString(d.h, s)
	return d
}

func (d *Digest) Int(v int) *Digest {
	binary.LittleEndian.PutUint64(d.buf[:], uint64(v))
	d.h.Write(d.buf[:])
	return d
}

func (d *Digest) Ints(vs []int) *Digest {
	d.Int(len(vs))
	for _, v := range vs {
		d.Int(v)
	}
	return d
}

func (d *Digest) Float32s(vs []float32) *Digest {
	d.Int(len(vs))
	for _, v := range vs {
		binary.LittleEndian.PutUint32(d.buf[:4], math.Float32bits(v))
		d.h.Write(d.buf[:4])
	}
	return d
}

// Hex returns the hex encoded sum of everything written so far.
func (d *Digest) Hex() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
