package routeros

import "time"

// SetClock replaces the clock used to compute interface uptime.
func SetClock(c *Client, now func() time.Time) {
	c.now = now
}
