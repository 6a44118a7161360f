// Package partition splits the corpus into batches for parallel workers.
//
// Targets are sorted by name and cut into contiguous slices. When the
// count does not divide evenly, the lowest batch indices receive one extra
// target each. The assignment depends only on the sorted names, the batch
// count and the batch index, so every machine computes the same batches.
package partition

import (
	"strconv"

	"github.com/NielsdaWheelz/primer/internal/core"
	"github.com/NielsdaWheelz/primer/internal/errors"
)

// Validate checks a (count, index) pair. Returns E_INVALID_BATCH.
func Validate(count, index int) error {
	if count < 1 {
		return errors.NewWithDetails(errors.EInvalidBatch, "batch count must be a positive integer",
			map[string]string{"batches": strconv.Itoa(count)})
	}
	if index < 0 || index >= count {
		return errors.NewWithDetails(errors.EInvalidBatch, "batch index must be in [0, "+strconv.Itoa(count)+")",
			map[string]string{"batches": strconv.Itoa(count), "batch_idx": strconv.Itoa(index)})
	}
	return nil
}

// Bounds returns the half-open range [start, end) of batch index over n
// sorted targets. Callers must have validated count and index.
func Bounds(n, count, index int) (start, end int) {
	size, rem := n/count, n%count
	start = index*size + min(index, rem)
	end = start + size
	if index < rem {
		end++
	}
	return start, end
}

// Partition returns batch index of count over targets. The input order is
// irrelevant; the result is ordered by name. More batches than targets
// yields empty batches, which is not an error.
func Partition(targets []core.Target, count, index int) ([]core.Target, error) {
	if err := Validate(count, index); err != nil {
		return nil, err
	}
	sorted := core.SortByName(targets)
	start, end := Bounds(len(sorted), count, index)
	return sorted[start:end:end], nil
}

// Sizes returns the size of every batch, for logging and reports.
func Sizes(n, count int) []int {
	if count < 1 {
		return nil
	}
	out := make([]int, count)
	for i := range out {
		s, e := Bounds(n, count, i)
		out[i] = e - s
	}
	return out
}
