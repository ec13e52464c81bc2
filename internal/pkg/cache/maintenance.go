package cache

import "time"

// sweepLoop runs Sweep on a ticker until Close is called. Reads expire
// entries lazily, but keys that are written once and never read again would
// otherwise stay resident until evicted.
func (c *Bounded[K, V]) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
