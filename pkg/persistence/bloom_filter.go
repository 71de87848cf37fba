package persistence

import (
	"math"

	"github.com/twmb/murmur3"
)

// bloomFilterImpl is a standard k-hash bloom filter over SSTable keys,
// filled by WriteSSTableData as it writes a table and consulted by
// SSTable.Get and SSTable.HasKey. It lives in memory only: it is not
// stored in the table file, and LevelManager.Get reads through
// TableCache without consulting it.
type bloomFilterImpl struct {
	bits []bool
	size uint32
	k    int
}

// NewBloomFilter sizes a filter for expectedItems keys at the given
// target false-positive rate, per the standard m = -(n ln p) / (ln 2)^2,
// k = (m/n) ln 2 formulas.
func NewBloomFilter(expectedItems uint32, falsePositiveRate float64) BloomFilter {
	size := optimalBitCount(expectedItems, falsePositiveRate)
	k := optimalHashCount(expectedItems, size)
	return &bloomFilterImpl{
		bits: make([]bool, size),
		size: size,
		k:    k,
	}
}

func optimalBitCount(expectedItems uint32, falsePositiveRate float64) uint32 {
	if expectedItems == 0 {
		expectedItems = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}
	const ln2Sq = 0.4804530139182014 // ln(2)^2
	m := -float64(expectedItems) * math.Log(falsePositiveRate) / ln2Sq
	if m < 8 {
		m = 8
	}
	return uint32(m)
}

func optimalHashCount(expectedItems, size uint32) int {
	if expectedItems == 0 {
		expectedItems = 1
	}
	const ln2 = 0.6931471805599453
	k := int(float64(size) / float64(expectedItems) * ln2)
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return k
}

// bitIndices derives the k probe positions for key using the
// Kirsch-Mitzenmacher double-hashing trick: two independent murmur3
// seeds combine to simulate k hash functions without running the hash
// k separate times.
func (bf *bloomFilterImpl) bitIndices(key []byte) []uint32 {
	h1 := murmur3.Sum32(key)
	h2 := murmur3.SeedSum32(0x9747b28c, key)

	indices := make([]uint32, bf.k)
	for i := 0; i < bf.k; i++ {
		combined := h1 + uint32(i)*h2
		indices[i] = combined % bf.size
	}
	return indices
}

func (bf *bloomFilterImpl) Add(key []byte) {
	for _, idx := range bf.bitIndices(key) {
		bf.bits[idx] = true
	}
}

func (bf *bloomFilterImpl) MayContain(key []byte) bool {
	for _, idx := range bf.bitIndices(key) {
		if !bf.bits[idx] {
			return false
		}
	}
	return true
}
