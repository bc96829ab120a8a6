package session

// scriptRoller replays fixed random values. Once a script runs out the last
// value repeats; an empty script yields 0.
type scriptRoller struct {
	floats []float64
	ints   []int
	fCalls int
	iCalls int
}

func (r *scriptRoller) Float64() float64 {
	r.fCalls++
	if len(r.floats) == 0 {
		return 0
	}
	i := r.fCalls - 1
	if i >= len(r.floats) {
		i = len(r.floats) - 1
	}
	return r.floats[i]
}

func (r *scriptRoller) Intn(n int) int {
	r.iCalls++
	if len(r.ints) == 0 {
		return 0
	}
	i := r.iCalls - 1
	if i >= len(r.ints) {
		i = len(r.ints) - 1
	}
	return r.ints[i] % n
}

func countEvents(events []Event, t EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == t {
			n++
		}
	}
	return n
}
