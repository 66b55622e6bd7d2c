package health

// uptimeRing is a fixed-capacity window of pass/fail samples. At one sample a
// minute the default capacity covers thirty days.
type uptimeRing struct {
	samples []bool
	next    int
	filled  bool
}

const defaultUptimeWindow = 43200

func newUptimeRing(capacity int) *uptimeRing {
	if capacity <= 0 {
		capacity = defaultUptimeWindow
	}
	return &uptimeRing{samples: make([]bool, capacity)}
}

func (r *uptimeRing) Add(up bool) {
	r.samples[r.next] = up
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.filled = true
	}
}

func (r *uptimeRing) Len() int {
	if r.filled {
		return len(r.samples)
	}
	return r.next
}

// UptimePercent is the share of passing samples in the window. An empty ring
// reports 100: a device never checked is not yet down.
func (r *uptimeRing) UptimePercent() float64 {
	n := r.Len()
	if n == 0 {
		return 100.0
	}
	up := 0
	for i := 0; i < n; i++ {
		if r.samples[i] {
			up++
		}
	}
	return float64(up) / float64(n) * 100.0
}
