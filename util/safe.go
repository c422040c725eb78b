package util

// Safe returns the zero value of T if input is nil
func Safe[T any](input *T) T {
	if input == nil {
		var zero T
		return zero
	}
	return *input
}

// SafeString returns empty string if null
func SafeString(input *string) string {
	return Safe(input)
}

// SafeInt32 returns 0 if null
func SafeInt32(input *int32) int32 {
	return Safe(input)
}

// Ref returns a reference to a copy of input
func Ref[T any](input T) *T {
	return &input
}

// RefString returns a reference to a string
func RefString(input string) *string {
	return &input
}

// RefInt32 returns a reference to an int32
func RefInt32(input int32) *int32 {
	return &input
}

// Deref returns the value behind input and whether it was non-nil
func Deref[T any](input *T) (T, bool) {
	if input == nil {
		var zero T
		return zero, false
	}
	return *input, true
}
