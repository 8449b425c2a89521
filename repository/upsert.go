package repository

// UpsertResult reports how a batch upsert partitioned its rows.
type UpsertResult struct {
	Inserted int
	Updated  int
}

// batchRanges splits total rows into contiguous [start, end) ranges of at
// most batchSize rows. Each range is committed in its own transaction, so a
// failing batch never rolls back the ones committed before it.
func batchRanges(total, batchSize int) [][2]int {
	if batchSize < 1 {
		batchSize = 1
	}
	var ranges [][2]int
	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}

// partitionByKey splits row indexes into inserts (key absent from the store)
// and updates (key present), preserving row order within each side.
func partitionByKey(n int, keyOf func(i int) string, existing map[string]struct{}) (inserts, updates []int) {
	for i := 0; i < n; i++ {
		if _, ok := existing[keyOf(i)]; ok {
			updates = append(updates, i)
		} else {
			inserts = append(inserts, i)
		}
	}
	return inserts, updates
}
