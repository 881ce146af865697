package steering

// Cooldown is a frame-counted suppression window. It only goes up through
// Arm and only goes down through Tick, one frame at a time, never below 0.
type Cooldown int

// Arm opens a window of n frames. Negative n closes the window.
func (c *Cooldown) Arm(n int) {
	if n < 0 {
		n = 0
	}
	*c = Cooldown(n)
}

// Tick consumes one frame of the window
func (c *Cooldown) Tick() {
	if *c > 0 {
		*c--
	}
}

// Active reports whether the window is still open
func (c Cooldown) Active() bool {
	return c > 0
}

// Remaining returns the frames left in the window
func (c Cooldown) Remaining() int {
	if c < 0 {
		return 0
	}
	return int(c)
}
