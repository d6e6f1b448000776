// Package gen has pseudorandom value generators which are repeatable for a
// given seed.
package gen

import (
	"math/rand"
	"time"
)

// Generator draws zipfian values, so a few choices come up often and most
// rarely. It is not safe for concurrent use.
type Generator struct {
	r  *rand.Rand
	zs map[int]*rand.Zipf
}

// NewGenerator gets a new Generator.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		r:  rand.New(rand.NewSource(seed)),
		zs: make(map[int]*rand.Zipf),
	}
}

// Uint64 gets a zipfian random uint64 in [0, cardinality).
func (g *Generator) Uint64(cardinality int) uint64 {
	if cardinality <= 1 {
		return 0
	}
	z, ok := g.zs[cardinality]
	if !ok {
		// rand.Zipf generates values in [0, imax].
		imax := uint64(cardinality) - 1
		v := 0.05 * float64(imax)
		if v < 1.0 {
			v = 1.0
		}
		z = rand.NewZipf(g.r, 1.1, v, imax)
		g.zs[cardinality] = z
	}
	return z.Uint64()
}

// Pick returns a zipfian random member of list, which must not be empty.
func (g *Generator) Pick(list []string) string {
	return list[g.Uint64(len(list))]
}

// Intn returns a uniform random int in [0, n).
func (g *Generator) Intn(n int) int {
	return g.r.Intn(n)
}

// Float64 returns a uniform random float in [0, 1).
func (g *Generator) Float64() float64 {
	return g.r.Float64()
}

// Date returns a uniform random day in [from, to).
func (g *Generator) Date(from, to time.Time) time.Time {
	days := int(to.Sub(from).Hours() / 24)
	if days <= 0 {
		return from
	}
	return from.AddDate(0, 0, g.r.Intn(days))
}

// PermutationGenerator maps integer IDs through a pseudorandom but repeatable
// permutation of [0, m) without storing it. It runs one step of a linear
// congruential generator with modulus m, a prime increment, and a multiplier
// chosen for a full period.
type PermutationGenerator struct {
	a int64
	c int64
	m int64
}

// NewPermutationGenerator returns a PermutationGenerator over [0, m). The
// seed selects between different permutations.
func NewPermutationGenerator(m int64, seed int64) *PermutationGenerator {
	return &PermutationGenerator{
		a: multiplierFromModulus(m, seed),
		c: 22695479,
		m: m,
	}
}

// Permute gets the permuted value for n.
func (p *PermutationGenerator) Permute(n int64) int64 {
	return (n%p.m*p.a + p.c) % p.m
}

// For a full period a-1 must be divisible by every prime factor of m, and by
// 4 if m is. c and m are relatively prime as long as c is a prime other
// than m.
func multiplierFromModulus(m int64, seed int64) int64 {
	product := int64(1)
	for p := range primeFactors(m) {
		product *= p
	}
	if m%4 == 0 {
		product *= 2
	}
	return (product*seed + 1) % m
}

// primeFactors is naive and slow for a large prime n.
func primeFactors(n int64) map[int64]int {
	factors := make(map[int64]int)
	for i := int64(2); i <= n; i++ {
		for n%i == 0 {
			factors[i]++
			n /= i
		}
	}
	return factors
}
