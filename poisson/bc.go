package poisson

import "fmt"

// RobinBcCoefs supplies the coefficients of a*u + b*du/dn = g on the
// physical faces of the domain. location is 2*axis+side and x is the
// position of the boundary face.
type RobinBcCoefs interface {
	Coefs(location int, x [3]float64, t float64) (a, b, g float64)
}

// RobinBcFunc adapts a plain function.
type RobinBcFunc func(location int, x [3]float64, t float64) (a, b, g float64)

func (f RobinBcFunc) Coefs(location int, x [3]float64, t float64) (a, b, g float64) {
	return f(location, x, t)
}

// DirichletBc imposes u = G on every face; a nil G is homogeneous.
type DirichletBc struct {
	G func(x [3]float64, t float64) float64
}

func (bc DirichletBc) Coefs(location int, x [3]float64, t float64) (a, b, g float64) {
	a = 1
	if bc.G != nil {
		g = bc.G(x, t)
	}
	return
}

// NeumannBc imposes du/dn = G on every face; a nil G is homogeneous.
type NeumannBc struct {
	G func(x [3]float64, t float64) float64
}

func (bc NeumannBc) Coefs(location int, x [3]float64, t float64) (a, b, g float64) {
	b = 1
	if bc.G != nil {
		g = bc.G(x, t)
	}
	return
}

// FaceBcs selects a different condition per face location; missing
// locations fall back to homogeneous Dirichlet.
type FaceBcs map[int]RobinBcCoefs

func (fb FaceBcs) Coefs(location int, x [3]float64, t float64) (a, b, g float64) {
	if bc, ok := fb[location]; ok {
		return bc.Coefs(location, x, t)
	}
	return 1, 0, 0
}

// robinClosure gives u_ghost = alpha*u_interior + beta*g for a ghost at
// distance h from the interior value, the face lying halfway between them.
func robinClosure(a, b, h float64) (alpha, beta float64) {
	den := a*h + 2*b
	if den == 0 {
		panic(fmt.Sprintf("degenerate Robin coefficients a = %g, b = %g", a, b))
	}
	alpha = (2*b - a*h) / den
	beta = 2 * h / den
	return
}
