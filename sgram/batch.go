package sgram

// Batches slices rows into consecutive chunks of size in their original
// order. The last chunk is shorter when len(rows) is not a multiple of size.
func Batches[T any](rows []T, size int) [][]T {
	if size <= 0 {
		return nil
	}
	var batches [][]T
	for i := 0; i < len(rows); i += size {
		j := min(i+size, len(rows))
		batches = append(batches, rows[i:j])
	}
	return batches
}
