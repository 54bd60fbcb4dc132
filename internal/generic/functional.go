package generic

// Filter returns a new slice with the elements of s for which f returns true.
func Filter[T any](s []T, f func(T) bool) []T {
	var res []T

	for _, v := range s {
		if f(v) {
			res = append(res, v)
		}
	}

	return res
}

// Unique returns a copy of s with repeated elements removed, keeping the first
// occurrence of each element in place.
func Unique[T comparable](s []T) []T {
	seen := make(map[T]struct{}, len(s))
	res := make([]T, 0, len(s))

	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}

		seen[v] = struct{}{}
		res = append(res, v)
	}

	return res
}
