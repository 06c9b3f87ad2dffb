package circulation

// holdsCopy reports whether a record in the given status keeps a copy off the
// shelf. Overdue loans still hold theirs.
func holdsCopy(status string) bool {
	return status == StatusBorrowed || status == StatusOverdue
}

// copyDelta is a change to one book's available copies.
type copyDelta struct {
	BookID int64
	Delta  int
}

// transition computes the available-copy adjustments for moving a record from
// (oldBook, oldStatus) to (newBook, newStatus). A zero oldBook means the
// record is new. Adjustments for the same book are netted and zero deltas
// dropped; returns come before takes so a move never needs spare stock on the
// book it leaves.
func transition(oldBook int64, oldStatus string, newBook int64, newStatus string) []copyDelta {
	give := oldBook != 0 && holdsCopy(oldStatus)
	take := holdsCopy(newStatus)

	if oldBook == newBook {
		d := 0
		if give {
			d++
		}
		if take {
			d--
		}
		if d == 0 {
			return nil
		}
		return []copyDelta{{BookID: newBook, Delta: d}}
	}

	var out []copyDelta
	if give {
		out = append(out, copyDelta{BookID: oldBook, Delta: 1})
	}
	if take {
		out = append(out, copyDelta{BookID: newBook, Delta: -1})
	}
	return out
}
