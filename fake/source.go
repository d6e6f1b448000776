// Package fake generates person records shaped like a district student
// information system export, for demos and load tests.
package fake

import (
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/fake/gen"
)

// Person IDs are nine digits.
const (
	minPersonID = 100000000
	idSpace     = 900000000
)

// PersonSource is an ldk.Source which generates fake person records. Record
// is safe for concurrent use.
type PersonSource struct {
	mu  sync.Mutex
	max uint64
	n   uint64
	pg  *PersonGenerator
}

// NewPersonSource creates a new PersonSource with the given random seed which
// stops after max records. A max of 0 never stops. Using the same seed gives
// the same series of records on a given version of Go.
func NewPersonSource(seed int64, max uint64) *PersonSource {
	if max == 0 {
		max = math.MaxUint64
	}
	return &PersonSource{
		max: max,
		pg:  NewPersonGenerator(seed),
	}
}

// Record implements ldk.Source.
func (s *PersonSource) Record() (ldk.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n >= s.max {
		return nil, io.EOF
	}
	rec := s.pg.Record(s.n)
	s.n++
	return rec, nil
}

// Count implements ldk.Counter.
func (s *PersonSource) Count() (int64, bool) {
	if s.max > math.MaxInt64 {
		return 0, false
	}
	return int64(s.max), true
}

// PersonGenerator generates fake person records. It is not safe for
// concurrent use.
type PersonGenerator struct {
	g    *gen.Generator
	ids  *gen.PermutationGenerator
	from time.Time
	to   time.Time
}

// NewPersonGenerator initializes a new PersonGenerator.
func NewPersonGenerator(seed int64) *PersonGenerator {
	return &PersonGenerator{
		g:    gen.NewGenerator(seed),
		ids:  gen.NewPermutationGenerator(idSpace, seed),
		from: time.Date(2002, 1, 1, 0, 0, 0, 0, time.UTC),
		to:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Record returns the n-th person. Person IDs are distinct for the first
// 900 million records. Columns are strings, and optional columns are
// sometimes missing.
func (p *PersonGenerator) Record(n uint64) ldk.Record {
	id := strconv.FormatInt(minPersonID+p.ids.Permute(int64(n%idSpace)), 10)
	rec := ldk.Record{
		"PersonID":              id,
		"FirstName":             p.g.Pick(firstNames),
		"LastName":              p.g.Pick(lastNames),
		"Birthdate":             p.g.Date(p.from, p.to).Format("01/02/2006"),
		"PersonIdentifiers":     id,
		"IdentificationSystems": "District",
	}
	if p.g.Float64() < 0.3 {
		rec["MiddleName"] = p.g.Pick(firstNames)
	}
	if p.g.Float64() < 0.95 {
		rec["Sex"] = p.g.Pick(sexes)
	}
	if p.g.Float64() < 0.5 {
		rec["PersonIdentifiers"] = id + "|" + strconv.Itoa(10000+p.g.Intn(90000))
		rec["IdentificationSystems"] = "District|State"
	}
	if races := p.races(); races != "" {
		rec["RaceEthnicity"] = races
	}
	return rec
}

func (p *PersonGenerator) races() string {
	n := 1
	if p.g.Float64() < 0.1 {
		n = 0
	} else if p.g.Float64() < 0.15 {
		n = 2
	}
	picked := make([]string, 0, n)
	for len(picked) < n {
		r := p.g.Pick(raceList)
		if len(picked) > 0 && picked[0] == r {
			continue
		}
		picked = append(picked, r)
	}
	return strings.Join(picked, ",")
}

var sexes = []string{"Female", "Male", "NotSelected"}

var raceList = []string{"White", "Black", "Asian", "AmericanIndianOrAlaskaNative", "NativeHawaiianOrOtherPacificIslander"}

var firstNames = []string{"MARY", "JAMES", "PATRICIA", "JOHN", "JENNIFER", "ROBERT", "LINDA", "MICHAEL", "ELIZABETH", "WILLIAM", "BARBARA", "DAVID", "SUSAN", "RICHARD", "JESSICA", "JOSEPH", "SARAH", "THOMAS", "KAREN", "CHARLES", "NANCY", "CHRISTOPHER", "LISA", "DANIEL", "BETTY", "MATTHEW", "MARGARET", "ANTHONY", "SANDRA", "MARK", "ASHLEY", "DONALD", "KIMBERLY", "STEVEN", "EMILY", "PAUL", "DONNA", "ANDREW", "MICHELLE", "JOSHUA", "DOROTHY", "KENNETH", "CAROL", "KEVIN", "AMANDA", "BRIAN", "MELISSA", "GEORGE", "DEBORAH", "EDITH"}

var lastNames = []string{"SMITH", "JOHNSON", "WILLIAMS", "BROWN", "JONES", "GARCIA", "MILLER", "DAVIS", "RODRIGUEZ", "MARTINEZ", "HERNANDEZ", "LOPEZ", "GONZALEZ", "WILSON", "ANDERSON", "THOMAS", "TAYLOR", "MOORE", "JACKSON", "MARTIN", "LEE", "PEREZ", "THOMPSON", "WHITE", "HARRIS", "SANCHEZ", "CLARK", "RAMIREZ", "LEWIS", "ROBINSON", "WALKER", "YOUNG", "ALLEN", "KING", "WRIGHT", "SCOTT", "TORRES", "NGUYEN", "HILL", "FLORES", "GREEN", "ADAMS", "NELSON", "BAKER", "HALL", "RIVERA", "CAMPBELL", "MITCHELL", "CARTER", "ROBERTS"}
