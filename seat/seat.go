// Package seat enumerates the four fixed table positions.
package seat

import "fmt"

// Seat is one of the four wind positions at the table.
type Seat string

const (
	Ton Seat = "ton" // east, seat0
	Nan Seat = "nan" // south, seat1
	Sya Seat = "sya" // west, seat2
	Pei Seat = "pei" // north, seat3
)

// Count is the number of seats at a table.
const Count = 4

// First is the seat the room creator takes and the seat excluded from
// round-input relays.
const First = Ton

// All lists the seats in their fixed allocation order.
var All = [Count]Seat{Ton, Nan, Sya, Pei}

// At returns the seat at position i of the allocation order.
func At(i int) (Seat, error) {
	if i < 0 || i >= Count {
		return "", fmt.Errorf("seat index %d out of range", i)
	}
	return All[i], nil
}

// Index returns the position of s in the allocation order, or -1.
func (s Seat) Index() int {
	for i, v := range All {
		if v == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the four seats.
func (s Seat) Valid() bool {
	return s.Index() >= 0
}

// NextFree returns the first seat in allocation order that is not occupied.
// The boolean is false when every seat is taken.
func NextFree(occupied []Seat) (Seat, bool) {
	used := make(map[Seat]bool, len(occupied))
	for _, s := range occupied {
		used[s] = true
	}
	for _, s := range All {
		if !used[s] {
			return s, true
		}
	}
	return "", false
}
