package scheduling

import "time"

// Overlaps checks the candidate interval [start, start+duration+buffer)
// against the occupied intervals. It returns one conflicting occupant and
// the total number of conflicts; more than one conflict means storage
// already holds overlapping visits.
func Overlaps(start time.Time, duration, buffer int, occupied []Occupied) (*Occupied, int) {
	end := start.Add(minutes(duration + buffer))

	var first *Occupied
	count := 0
	for i := range occupied {
		o := &occupied[i]
		if start.Before(o.End()) && o.Start.Before(end) {
			if first == nil {
				first = o
			}
			count++
		}
	}
	return first, count
}
