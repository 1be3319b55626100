// Package chunk partitions ordered items into contiguous fixed-size groups.
// The dispatcher uses it to cut collected text units into request batches.
package chunk

// DefaultSize is the batch size used when none is configured.
const DefaultSize = 10

// Chunker splits slices into groups of at most Size items.
type Chunker struct {
	Size int // maximum items per group
}

// New creates a Chunker with the given size.
// Defaults to DefaultSize if size <= 0.
func New(size int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	return &Chunker{Size: size}
}

// Split cuts items into contiguous groups, preserving order. The groups
// share the backing array of items.
func Split[T any](c *Chunker, items []T) [][]T {
	if len(items) == 0 {
		return nil
	}

	groups := make([][]T, 0, (len(items)+c.Size-1)/c.Size)
	for i := 0; i < len(items); i += c.Size {
		end := min(i+c.Size, len(items))
		groups = append(groups, items[i:end:end])
	}
	return groups
}
