package queue

// Insert adds tracks at pos and returns the insert index. The current track
// stays current: when Current >= insert index it shifts by len(tracks).
func (q *Queue) Insert(tracks []Track, pos Position) int {
	n := len(q.Tracks)

	var at int
	switch pos.Kind {
	case PositionNext:
		if q.Current >= 0 {
			at = q.Current + 1
		}
	case PositionIndex:
		at = pos.Index
	default:
		at = n
	}
	at = clamp(at, 0, n)

	if len(tracks) == 0 {
		return at
	}

	out := make([]Track, 0, n+len(tracks))
	out = append(out, q.Tracks[:at]...)
	out = append(out, tracks...)
	out = append(out, q.Tracks[at:]...)
	q.Tracks = out

	if q.Current >= at {
		q.Current += len(tracks)
	}
	q.normalize()
	return at
}

// Remove drops every track whose id is in ids and returns how many were removed.
func (q *Queue) Remove(ids []string) int {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	oldCurrent := q.Current
	before := 0
	kept := make([]Track, 0, len(q.Tracks))
	for i, t := range q.Tracks {
		if _, ok := drop[t.ID]; ok {
			if i < oldCurrent {
				before++
			}
			continue
		}
		kept = append(kept, t)
	}

	removed := len(q.Tracks) - len(kept)
	q.Tracks = kept
	if oldCurrent >= 0 {
		q.Current = oldCurrent - before
	}
	// a removed current track leaves Current pointing at its successor;
	// normalize pulls it back when that was the tail.
	q.normalize()
	return removed
}

// Reorder arranges tracks to follow order. Unknown ids and repeated ids are
// skipped; tracks not named in order keep their relative order at the end.
// All entries sharing an id move together. The previously current entry stays
// current.
func (q *Queue) Reorder(order []string) {
	byID := make(map[string][]int, len(q.Tracks))
	for i, t := range q.Tracks {
		byID[t.ID] = append(byID[t.ID], i)
	}

	placed := make([]bool, len(q.Tracks))
	seen := make(map[string]struct{}, len(order))
	idx := make([]int, 0, len(q.Tracks))

	for _, id := range order {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		for _, i := range byID[id] {
			idx = append(idx, i)
			placed[i] = true
		}
	}
	for i := range q.Tracks {
		if !placed[i] {
			idx = append(idx, i)
		}
	}

	out := make([]Track, len(idx))
	newCurrent := -1
	for n, i := range idx {
		out[n] = q.Tracks[i]
		if i == q.Current {
			newCurrent = n
		}
	}

	q.Tracks = out
	q.Current = newCurrent
	q.normalize()
}

// Next returns the track after the current one without moving the cursor.
func (q *Queue) Next() (*Track, bool) {
	return q.trackAt(q.Current + 1)
}

// Previous returns the track before the current one without moving the cursor.
func (q *Queue) Previous() (*Track, bool) {
	if q.Current <= 0 {
		return nil, false
	}
	return q.trackAt(q.Current - 1)
}

// IndexOf returns the index of the first track with id, or -1.
func (q *Queue) IndexOf(id string) int {
	for i, t := range q.Tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Valid reports whether index addresses a track.
func (q *Queue) Valid(index int) bool {
	return index >= 0 && index < len(q.Tracks)
}

func (q *Queue) trackAt(i int) (*Track, bool) {
	if !q.Valid(i) {
		return nil, false
	}
	t := q.Tracks[i]
	return &t, true
}

// normalize enforces -1 <= Current < len(Tracks), and Current == -1 when empty.
func (q *Queue) normalize() {
	if q.Tracks == nil {
		q.Tracks = []Track{}
	}
	switch {
	case len(q.Tracks) == 0:
		q.Current = -1
	case q.Current >= len(q.Tracks):
		q.Current = len(q.Tracks) - 1
	case q.Current < -1:
		q.Current = -1
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
