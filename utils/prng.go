package utils

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// PRNG is an interface for secure (keyed) deterministic generation of random
// bytes.
type PRNG interface {
	Clock(sum []byte) error
	GetClock() uint64
}

// KeyedPRNG is a structure storing the parameters used to securely and
// deterministically generate shared sequences of random bytes among different
// parties using the key-based blake2b XOF.
type KeyedPRNG struct {
	key   []byte
	xof   blake2b.XOF
	clock uint64
}

// NewKeyedPRNG creates a new instance of KeyedPRNG. Accepts an optional key,
// else a random key is used.
func NewKeyedPRNG(key []byte) (*KeyedPRNG, error) {
	var err error
	prng := new(KeyedPRNG)
	prng.clock = 0
	prng.key = key
	prng.xof, err = blake2b.NewXOF(blake2b.OutputLengthUnknown, key)
	return prng, err
}

// NewPRNG creates KeyedPRNG keyed from rand.Read for truly random seeding.
func NewPRNG() (*KeyedPRNG, error) {
	var err error
	prng := new(KeyedPRNG)
	prng.clock = 0
	randomBytes := make([]byte, 64)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, err
	}
	prng.key = randomBytes
	prng.xof, err = blake2b.NewXOF(blake2b.OutputLengthUnknown, prng.key)
	return prng, err
}

// GetClock returns the value of the clock cycle of the KeyedPRNG.
func (prng *KeyedPRNG) GetClock() uint64 {
	return prng.clock
}

// Clock reads bytes from the KeyedPRNG on sum.
func (prng *KeyedPRNG) Clock(sum []byte) error {
	if _, err := prng.xof.Read(sum); err != nil {
		return err
	}
	prng.clock++
	return nil
}

// SetClock sets the clock cycle of the KeyedPRNG to a given number by
// calling Clock until the clock cycle reaches the desired number. Returns an
// error if the target clock cycle is smaller than the current clock cycle.
func (prng *KeyedPRNG) SetClock(sum []byte, n uint64) error {
	if prng.clock > n {
		return fmt.Errorf("cannot SetClock: new clock cycle must be larger than current clock cycle")
	}
	for prng.clock != n {
		if _, err := prng.xof.Read(sum); err != nil {
			return err
		}
		prng.clock++
	}
	return nil
}
