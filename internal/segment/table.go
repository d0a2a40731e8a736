// Package segment maps the dartboard's raw notification byte codes to
// semantic dart segments.
//
// The board reports hits as short ASCII frames of the form "<row>.<col>@",
// where row/col are coordinates in the board's internal electrode matrix.
// The matrix layout is board-specific and has no arithmetic relationship to
// the segment values printed on the board face, so the mapping is kept as a
// fixed lookup table. The table is populated once at package init and never
// mutated.
package segment

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the dartboard region category a code belongs to.
type Kind int

const (
	KindSingleInner Kind = iota
	KindSingleOuter
	KindDouble
	KindTriple
	KindBull
	KindDoubleBull
	KindMiss
	KindReset
)

func (k Kind) String() string {
	switch k {
	case KindSingleInner:
		return "single-inner"
	case KindSingleOuter:
		return "single-outer"
	case KindDouble:
		return "double"
	case KindTriple:
		return "triple"
	case KindBull:
		return "bull"
	case KindDoubleBull:
		return "double-bull"
	case KindMiss:
		return "miss"
	case KindReset:
		return "reset"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Code is one entry of the segment table: the base value printed on the
// board face (0-25) and the region kind the electrode belongs to.
type Code struct {
	Base int
	Kind Kind
}

// Key converts a raw notification frame to the dash-joined decimal form
// used as the table key, e.g. []byte("4.2@") -> "52-46-50-64".
func Key(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = strconv.Itoa(int(b))
	}
	return strings.Join(parts, "-")
}

// key builds a table key from the ASCII form of a frame. Table entries are
// written in ASCII so the matrix stays readable next to the board's wiring
// chart.
func key(ascii string) string {
	return Key([]byte(ascii))
}

// segmentOrder is the board's electrode row order. Rows follow the wiring
// harness, which happens to match the clockwise face order starting at 20.
var segmentOrder = [20]int{20, 1, 18, 4, 13, 6, 10, 15, 2, 17, 3, 19, 7, 16, 8, 11, 14, 9, 12, 5}

// Matrix columns: 0 = outer single, 1 = inner single, 2 = triple, 3 = double.
var columnKinds = [4]Kind{KindSingleOuter, KindSingleInner, KindTriple, KindDouble}

var table = buildTable()

func buildTable() map[string]Code {
	t := make(map[string]Code, len(segmentOrder)*len(columnKinds)+4)
	for row, base := range segmentOrder {
		for col, kind := range columnKinds {
			t[key(fmt.Sprintf("%d.%d@", row, col))] = Code{Base: base, Kind: kind}
		}
	}
	// Bull electrodes sit outside the matrix and report a fixed row.
	t[key("25.0@")] = Code{Base: 25, Kind: KindBull}
	t[key("25.1@")] = Code{Base: 25, Kind: KindDoubleBull}
	// Out-board sensor and the green "next player" button.
	t[key("OUT@")] = Code{Base: 0, Kind: KindMiss}
	t[key("BTN@")] = Code{Base: 0, Kind: KindReset}
	return t
}

// Lookup returns the segment code for a dash-joined byte key.
func Lookup(k string) (Code, bool) {
	c, ok := table[k]
	return c, ok
}

// Size returns the number of table entries.
func Size() int {
	return len(table)
}

// Keys returns every known table key. Order is unspecified.
func Keys() []string {
	ks := make([]string, 0, len(table))
	for k := range table {
		ks = append(ks, k)
	}
	return ks
}

// Multiplier returns the score multiplier for a region kind: 0 for a miss,
// 2 for doubles, 3 for triples, 1 for everything else that scores.
func Multiplier(k Kind) int {
	switch k {
	case KindMiss, KindReset:
		return 0
	case KindDouble, KindDoubleBull:
		return 2
	case KindTriple:
		return 3
	default:
		return 1
	}
}

// Label synthesizes the human-readable segment label, e.g. "T20", "D16",
// "S5", "BULL".
func Label(c Code) string {
	switch c.Kind {
	case KindTriple:
		return fmt.Sprintf("T%d", c.Base)
	case KindDouble:
		return fmt.Sprintf("D%d", c.Base)
	case KindSingleInner, KindSingleOuter:
		return fmt.Sprintf("S%d", c.Base)
	case KindBull:
		return "BULL"
	case KindDoubleBull:
		return "DBULL"
	case KindMiss:
		return "MISS"
	case KindReset:
		return "RESET"
	default:
		return "?"
	}
}

// ByLabel finds a code by its synthesized label. Used by the diagnostic
// throw injection path, which addresses segments by name rather than by raw
// bytes. Inner singles win over outer for plain "S<n>" labels.
func ByLabel(label string) (Code, bool) {
	label = strings.ToUpper(strings.TrimSpace(label))
	switch label {
	case "BULL", "25":
		return Code{Base: 25, Kind: KindBull}, true
	case "DBULL", "D25", "50":
		return Code{Base: 25, Kind: KindDoubleBull}, true
	case "MISS", "OUT", "0":
		return Code{Base: 0, Kind: KindMiss}, true
	case "RESET", "BTN":
		return Code{Base: 0, Kind: KindReset}, true
	}
	if len(label) < 2 {
		return Code{}, false
	}
	kind := KindSingleInner
	switch label[0] {
	case 'T':
		kind = KindTriple
	case 'D':
		kind = KindDouble
	case 'S':
		kind = KindSingleInner
	case 'O':
		kind = KindSingleOuter
	default:
		return Code{}, false
	}
	base, err := strconv.Atoi(label[1:])
	if err != nil || base < 1 || base > 20 {
		return Code{}, false
	}
	return Code{Base: base, Kind: kind}, true
}
