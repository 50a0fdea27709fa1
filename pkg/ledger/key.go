package ledger

import (
	"fmt"
	"strings"

	"vahanfetch/pkg/vahan"
)

// Key addresses a branch of the completion hierarchy. State is always set;
// each further field requires every coarser one. A key with only State and
// RTO set marks an entire sub-region complete, and so on down to the full
// month leaf.
type Key struct {
	State    string
	RTO      string
	Category vahan.Category
	Year     string
	Month    string
}

// LeafKey builds a full month-granularity key
func LeafKey(state, rto string, category vahan.Category, year, month string) Key {
	return Key{State: state, RTO: rto, Category: category, Year: year, Month: month}
}

// String renders the key in its durable colon-joined form, coarsest field
// first, omitting unset trailing fields
func (k Key) String() string {
	parts := []string{k.State}
	for _, p := range []string{k.RTO, string(k.Category), k.Year, k.Month} {
		if p == "" {
			break
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, ":")
}

// Valid reports whether the key's fields form a contiguous prefix of the
// hierarchy. Keys with a gap (a year but no category, say) address nothing.
func (k Key) Valid() bool {
	if k.State == "" {
		return false
	}
	fields := []string{k.RTO, string(k.Category), k.Year, k.Month}
	ended := false
	for _, f := range fields {
		if f == "" {
			ended = true
		} else if ended {
			return false
		}
	}
	if k.Category != "" {
		if _, ok := vahan.CategoryForDir(k.Category.DirName()); !ok {
			return false
		}
	}
	if k.Month != "" && vahan.MonthNumber(k.Month) == 0 {
		return false
	}
	return true
}

// IsLeaf reports whether the key addresses a single month
func (k Key) IsLeaf() bool {
	return k.Month != ""
}

// Subsumes reports whether marking k complete makes other redundant: k is at
// least as coarse and agrees with other on every field k sets
func (k Key) Subsumes(other Key) bool {
	if k.State != other.State {
		return false
	}
	if k.RTO == "" {
		return true
	}
	if k.RTO != other.RTO {
		return false
	}
	if k.Category == "" {
		return true
	}
	if k.Category != other.Category {
		return false
	}
	if k.Year == "" {
		return true
	}
	if k.Year != other.Year {
		return false
	}
	return k.Month == "" || k.Month == other.Month
}

// Ancestors returns the coarser keys that would each subsume k, nearest
// ancestor first
func (k Key) Ancestors() []Key {
	var out []Key
	if k.Month != "" {
		out = append(out, Key{State: k.State, RTO: k.RTO, Category: k.Category, Year: k.Year})
	}
	if k.Year != "" {
		out = append(out, Key{State: k.State, RTO: k.RTO, Category: k.Category})
	}
	if k.Category != "" {
		out = append(out, Key{State: k.State, RTO: k.RTO})
	}
	return out
}

// ParseKey parses the durable colon-joined form back into a tagged key
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 5 {
		return Key{}, fmt.Errorf("malformed ledger key %q", s)
	}
	k := Key{State: parts[0], RTO: parts[1]}
	if len(parts) > 2 {
		k.Category = vahan.Category(parts[2])
	}
	if len(parts) > 3 {
		k.Year = parts[3]
	}
	if len(parts) > 4 {
		k.Month = parts[4]
	}
	if !k.Valid() {
		return Key{}, fmt.Errorf("invalid ledger key %q", s)
	}
	return k, nil
}
