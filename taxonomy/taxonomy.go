// Package taxonomy classifies analysed components by the attack-generation
// layout encoded in their paths: <kind>/gen<N>/compound_<M>.
package taxonomy

import (
	"regexp"
	"sort"
	"strings"

	"github.com/lexcodex/attackmetrics/sonar"
)

// Kind names an attack-generation root.
type Kind string

const (
	KindRCG Kind = "rcg"
	KindPCG Kind = "pcg"
)

// Kinds lists the known roots in output order.
var Kinds = []Kind{KindRCG, KindPCG}

// Metric keys carried into each row.
const (
	MetricComplexity          = "complexity"
	MetricCognitiveComplexity = "cognitive_complexity"
)

// DefaultMetrics is the metric list requested from the server.
var DefaultMetrics = []string{MetricComplexity, MetricCognitiveComplexity}

var compoundPattern = regexp.MustCompile(`^(rcg|pcg)/gen(\d+)/compound_(\d+)$`)

// Coordinates locate a compound inside the taxonomy. Generation and
// CompoundID hold the decimal digits exactly as they appear in the path.
type Coordinates struct {
	Kind       Kind
	Generation string
	CompoundID string
}

// Row is one exported compound. Generation and CompoundID are digit strings
// ordered by numeric value, so leading zeros and any length are preserved.
type Row struct {
	Generation          string
	CompoundID          string
	Complexity          string
	CognitiveComplexity string
}

// Buckets holds the rows of each kind.
type Buckets map[Kind][]Row

// ParsePath reports whether path names a compound and, if so, where it sits.
// Directories, files and generation folders do not match.
func ParsePath(path string) (Coordinates, bool) {
	m := compoundPattern.FindStringSubmatch(path)
	if m == nil {
		return Coordinates{}, false
	}
	return Coordinates{Kind: Kind(m[1]), Generation: m[2], CompoundID: m[3]}, true
}

// Classify buckets the compound components by kind. Non-compound components
// are dropped and missing metrics become empty strings. Rows keep input order.
func Classify(components []sonar.Component) Buckets {
	buckets := Buckets{}
	for _, kind := range Kinds {
		buckets[kind] = nil
	}
	for _, component := range components {
		coords, ok := ParsePath(component.Path)
		if !ok {
			continue
		}
		buckets[coords.Kind] = append(buckets[coords.Kind], Row{
			Generation:          coords.Generation,
			CompoundID:          coords.CompoundID,
			Complexity:          component.MeasureValue(MetricComplexity),
			CognitiveComplexity: component.MeasureValue(MetricCognitiveComplexity),
		})
	}
	return buckets
}

// SortRows orders rows by generation, then compound id. Rows sharing both keep
// their relative order.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return Less(rows[i], rows[j])
	})
}

// Less reports whether a sorts before b.
func Less(a, b Row) bool {
	if c := CompareDigits(a.Generation, b.Generation); c != 0 {
		return c < 0
	}
	return CompareDigits(a.CompoundID, b.CompoundID) < 0
}

// CompareDigits compares two non-negative decimal digit strings by value and
// returns -1, 0 or +1. "007" and "7" compare equal.
func CompareDigits(a, b string) int {
	a = trimZeros(a)
	b = trimZeros(b)
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func trimZeros(s string) string {
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}

// IsDigits reports whether s is a non-empty run of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Sort orders every bucket in place.
func (b Buckets) Sort() {
	for _, rows := range b {
		SortRows(rows)
	}
}

// Total counts rows across all kinds.
func (b Buckets) Total() int {
	n := 0
	for _, rows := range b {
		n += len(rows)
	}
	return n
}
