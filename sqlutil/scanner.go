package sqlutil

// Scannable represents an object that can be scanned into a destination.
type Scannable interface {
	Scan(dest ...any) error
}

// Rows represents a database result set that can be iterated over.
// *sql.Rows implements it.
type Rows interface {
	Close() error
	Err() error
	Next() bool
	Scan(dest ...any) error
}

// ScanRows iterates over rows, calls scanFunc for each of them and closes
// rows. It returns the first scan error, then the iteration error, then the
// close error.
func ScanRows(r Rows, scanFunc func(row Scannable) error) (err error) {
	defer func() {
		if closeErr := r.Close(); err == nil {
			err = closeErr
		}
	}()

	for r.Next() {
		if err := scanFunc(r); err != nil {
			return err
		}
	}
	return r.Err()
}

// ScanAll collects one value of type T per row from a single column result.
func ScanAll[T any](r Rows) ([]T, error) {
	var values []T
	err := ScanRows(r, func(row Scannable) error {
		var v T
		if err := row.Scan(&v); err != nil {
			return err
		}
		values = append(values, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// ScanInt64s collects a single bigint column.
func ScanInt64s(r Rows) ([]int64, error) {
	return ScanAll[int64](r)
}
