package util

// Ptr returns a pointer to v, for optional fields set from literals or flags
func Ptr[T any](v T) *T {
	return &v
}
