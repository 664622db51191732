package random

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/pkg/errors"
)

// fakeRandReader implements the io.Reader interface and is used to force
// errors in the random functions.
type fakeRandReader struct {
	n   int
	err error
}

// Read returns the fake reader error and the lesser of the fake reader value
// and the length of p.
func (r *fakeRandReader) Read(p []byte) (int, error) {
	n := r.n
	if n > len(p) {
		n = len(p)
	}
	return n, r.err
}

// TestUint64 checks the distribution of generated numbers. A proper
// cryptographic RNG should produce roughly one number below 2^56 in 2^8
// tries; five hits are tolerated before declaring the source broken.
func TestUint64(t *testing.T) {
	tries := 1 << 8
	watermark := uint64(1 << 56)
	maxHits := 5

	numHits := 0
	for i := 0; i < tries; i++ {
		nonce, err := Uint64()
		if err != nil {
			t.Fatalf("Uint64 iteration %d failed: %v", i, err)
		}
		if nonce < watermark {
			numHits++
		}
		if numHits > maxHits {
			t.Fatalf("got %d values less than %d in %d runs, want at most %d",
				numHits, watermark, tries, maxHits)
		}
	}
}

// TestShortReads uses a fake reader to force the error paths.
func TestShortReads(t *testing.T) {
	reader := rand.Reader
	defer func() { rand.Reader = reader }()
	rand.Reader = &fakeRandReader{n: 2, err: io.EOF}

	nonce, err := Uint64()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Uint64: got error %v, want %v", err, io.ErrUnexpectedEOF)
	}
	if nonce != 0 {
		t.Errorf("Uint64: got %d, want 0", nonce)
	}

	tweak, err := Uint32()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Uint32: got error %v, want %v", err, io.ErrUnexpectedEOF)
	}
	if tweak != 0 {
		t.Errorf("Uint32: got %d, want 0", tweak)
	}
}
