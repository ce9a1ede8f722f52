package garp

import (
	"nichemodeller/internal/occurrence"
	"nichemodeller/internal/sample"
)

// Regression fits y = A + B*x and the quadratic coefficient C per dimension
// by least squares, y being 1 for presences and 0 otherwise.
type Regression struct {
	a, b, c sample.Sample
}

func NewRegression(occs []*occurrence.Occurrence) *Regression {
	r := &Regression{}
	if len(occs) == 0 {
		return r
	}
	dims := len(occs[0].Environment())
	sx := sample.New(dims)
	sxy := sample.New(dims)
	sxx := sample.New(dims)
	sxxy := sample.New(dims)
	sx4 := sample.New(dims)
	sy := 0.0
	for _, o := range occs {
		y := 0.0
		if o.Abundance > 0 {
			y = 1
		}
		sy += y
		env := o.Environment()
		for i := 0; i < dims && i < len(env); i++ {
			x := env[i]
			xx := x * x
			sx[i] += x
			sxx[i] += xx
			sxy[i] += x * y
			sxxy[i] += xx * y
			sx4[i] += xx * xx
		}
	}

	n := float64(len(occs))
	r.a, r.b, r.c = sample.New(dims), sample.New(dims), sample.New(dims)
	for i := 0; i < dims; i++ {
		r.c[i] = ratio(n*sxxy[i]-sxx[i]*sy, n*sx4[i]-sxx[i]*sxx[i])
		r.b[i] = ratio(n*sxy[i]-sx[i]*sy, n*sxx[i]-sx[i]*sx[i])
		r.a[i] = sy/n - r.b[i]*sx[i]/n
	}
	return r
}

// ratio is 0 for a degenerate (constant) dimension.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func (r *Regression) A() sample.Sample { return r.a }
func (r *Regression) B() sample.Sample { return r.b }
func (r *Regression) C() sample.Sample { return r.c }
