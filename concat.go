package docset

import (
	"sort"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// ConcatSet stitches an ordered list of open sets into one logical sequence
// without copying or re-indexing any data. It owns no file handles; closing
// the constituent readers remains the caller's responsibility, and the view
// must not be used after they are closed.
type ConcatSet struct {
	sets     []Set
	cumSizes []int
}

// NewConcatSet composes sets into a single view. It panics when called
// without sets.
func NewConcatSet(sets ...Set) *ConcatSet {
	if len(sets) == 0 {
		panic("docset: NewConcatSet requires at least one set")
	}

	cumSizes := make([]int, len(sets))
	size := 0
	for i, s := range sets {
		size += s.Len()
		cumSizes[i] = size
	}
	return &ConcatSet{sets: sets, cumSizes: cumSizes}
}

// Len returns the total number of documents across all sets.
func (c *ConcatSet) Len() int {
	return c.cumSizes[len(c.cumSizes)-1]
}

// Read returns the document at logical position i. Negative positions count
// from the end. Out-of-range positions yield an error matching ErrRange.
func (c *ConcatSet) Read(i int) (bson.D, error) {
	n := c.Len()
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, errors.Wrapf(ErrRange, "index %d, length %d", i, n)
	}

	k := sort.Search(len(c.cumSizes), func(k int) bool {
		return c.cumSizes[k] > i
	})
	if k > 0 {
		i -= c.cumSizes[k-1]
	}
	return c.sets[k].Read(i)
}
