package runtime

import "time"

// Config bounds one isolated context
type Config struct {
	ExecTimeout       time.Duration // Budget for one evaluation, timer callback or request
	FrameInterval     time.Duration // requestAnimationFrame period
	MinInterval       time.Duration // Floor applied to setInterval delays
	MaxMutationRounds int           // Observer delivery rounds per task
	MaxCallStackSize  int           // goja call stack limit
	Snapshots         bool          // Emit DOM_SNAPSHOT after tasks that change the output root
}

// DefaultConfig returns the defaults used by the host
func DefaultConfig() Config {
	return Config{
		ExecTimeout:       5 * time.Second,
		FrameInterval:     16 * time.Millisecond,
		MinInterval:       4 * time.Millisecond,
		MaxMutationRounds: 8,
		MaxCallStackSize:  1024,
		Snapshots:         true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = d.ExecTimeout
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = d.FrameInterval
	}
	if c.MinInterval <= 0 {
		c.MinInterval = d.MinInterval
	}
	if c.MaxMutationRounds <= 0 {
		c.MaxMutationRounds = d.MaxMutationRounds
	}
	if c.MaxCallStackSize <= 0 {
		c.MaxCallStackSize = d.MaxCallStackSize
	}
	return c
}
