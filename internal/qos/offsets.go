package qos

// startingOffsets spreads pingsPerRegion starting indexes as far apart as
// possible across n endpoints, offset[i] = i*n/pingsPerRegion.
//
// With 6 regions and 3 pings per region the walks start at 0, 2 and 4, so the
// first ping of each walk lands on a different region.
func startingOffsets(n, pingsPerRegion int) []int {
	offsets := make([]int, pingsPerRegion)
	for i := range offsets {
		offsets[i] = i * n / pingsPerRegion
	}
	return offsets
}

// offsetPool hands out each starting offset exactly once across concurrent
// workers.
type offsetPool struct {
	ch chan int
}

func newOffsetPool(offsets []int) *offsetPool {
	ch := make(chan int, len(offsets))
	for _, o := range offsets {
		ch <- o
	}
	close(ch)
	return &offsetPool{ch: ch}
}

// take returns the next unclaimed offset, or false once the pool is drained.
func (p *offsetPool) take() (int, bool) {
	o, ok := <-p.ch
	return o, ok
}
