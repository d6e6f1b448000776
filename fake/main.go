package fake

import (
	"time"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/ingest"
)

// Main builds documents from generated person records.
type Main struct {
	ingest.Main `flag:"!embed"`
	GenSeed     int64  `help:"Random seed for generating data. -1 will use current nanosecond."`
	Num         uint64 `help:"Number of records to generate. 0 means infinity."`
}

// NewMain returns a Main with the defaults.
func NewMain() *Main {
	m := &Main{
		Main: *ingest.NewMain(),
		Num:  1000,
	}
	m.NewSource = func() (ldk.Source, error) {
		seed := m.GenSeed
		if seed == -1 {
			seed = time.Now().UnixNano()
		}
		m.Log().Printf("generating people with seed %d", seed)
		return NewPersonSource(seed, m.Num), nil
	}
	return m
}
