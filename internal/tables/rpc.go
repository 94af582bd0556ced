package tables

// Increment returns x+1.
func Increment(x int) int {
	return x + 1
}

// Decrement returns x-1 floored at zero.
func Decrement(x int) int {
	return max(0, x-1)
}
