package loadgen

import "fmt"

// verifyBoard checks that board is ranked 1..n by points descending with
// ties broken by user id ascending, and that every user the run created
// holds exactly its expected points. Users the run did not create are only
// checked for ordering.
func verifyBoard(board []boardEntry, expected map[string]int64) error {
	for i, e := range board {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: entry %d has rank %d", ErrInconsistent, i, e.Rank)
		}
		if want, ok := expected[e.User.ID]; ok && e.Points != want {
			return fmt.Errorf("%w: user %s has %d points, want %d", ErrInconsistent, e.User.ID, e.Points, want)
		}
		if i == 0 {
			continue
		}
		prev := board[i-1]
		if e.Points > prev.Points || (e.Points == prev.Points && e.User.ID < prev.User.ID) {
			return fmt.Errorf("%w: rank %d (%s, %d) ordered before rank %d (%s, %d)",
				ErrInconsistent, prev.Rank, prev.User.ID, prev.Points, e.Rank, e.User.ID, e.Points)
		}
	}
	return nil
}
