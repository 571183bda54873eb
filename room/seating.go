package room

import "github.com/Kanata-Kikuchi/mahjong-lite-server/seat"

func occupiedSeats(players []*Player) []seat.Seat {
	out := make([]seat.Seat, 0, len(players))
	for _, p := range players {
		out = append(out, p.Seat)
	}
	return out
}

// compactAfterRemoval re-seats players contiguously from seat0 in their
// current slice order. Previous seat labels are not preserved.
func compactAfterRemoval(players []*Player) []*Player {
	out := make([]*Player, 0, len(players))
	for i, p := range players {
		if i >= seat.Count {
			break
		}
		p.Seat = seat.All[i]
		out = append(out, p)
	}
	return out
}

// reindexByList orders players by keys, each key naming a player id or,
// failing that, a player name. Keys that resolve to no unplaced player are
// skipped. Players no key mentions follow in their previous order. Seats are
// then assigned contiguously from seat0.
func reindexByList(players []*Player, keys []string) []*Player {
	placed := make(map[*Player]bool, len(players))
	ordered := make([]*Player, 0, len(players))

	for _, key := range keys {
		if p := resolve(players, key, placed); p != nil {
			placed[p] = true
			ordered = append(ordered, p)
		}
	}
	for _, p := range players {
		if !placed[p] {
			ordered = append(ordered, p)
		}
	}
	return compactAfterRemoval(ordered)
}

func resolve(players []*Player, key string, placed map[*Player]bool) *Player {
	if key == "" {
		return nil
	}
	for _, p := range players {
		if !placed[p] && p.ID == key {
			return p
		}
	}
	for _, p := range players {
		if !placed[p] && p.Name == key {
			return p
		}
	}
	return nil
}

// seatOrder lists player ids by scanning seats in enumeration order.
func seatOrder(players []*Player) []string {
	out := make([]string, 0, len(players))
	for _, s := range seat.All {
		for _, p := range players {
			if p.Seat == s {
				out = append(out, p.ID)
				break
			}
		}
	}
	return out
}
