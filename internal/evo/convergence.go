package evo

// Convergence tracks how often a generation's offspring duplicate rules the
// elite already holds. It starts at 1 and decays towards the share of
// duplicates among all duplicates seen so far.
type Convergence struct {
	value        float64
	improvements int
}

func NewConvergence() *Convergence {
	return &Convergence{value: 1}
}

// Observe folds the duplicate count of one generation in and returns the
// updated value.
func (c *Convergence) Observe(converged int) float64 {
	c.improvements += converged
	if c.improvements > 0 {
		c.value = (c.value + float64(converged)/float64(c.improvements)) / 2
	} else {
		c.value = 1
	}
	return c.value
}

func (c *Convergence) Value() float64 {
	return c.value
}

func (c *Convergence) Improvements() int {
	return c.improvements
}

// Progress never reports less than it already has.
type Progress struct {
	max float64
}

func (p *Progress) Observe(v float64) float64 {
	if v > p.max {
		p.max = v
	}
	return p.max
}

func (p *Progress) Value() float64 {
	return p.max
}
