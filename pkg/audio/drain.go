package audio

// Drain discards every value currently buffered in ch without blocking and
// returns how many were discarded. It stops early if ch is closed.
func Drain[T any](ch <-chan T) int {
	n := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}
