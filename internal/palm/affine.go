package palm

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Affine is a 2x3 affine transform in row-major order.
type Affine [6]float64

// Apply maps p through the transform.
func (m Affine) Apply(p Point) Point {
	return Point{
		X: m[0]*p.X + m[1]*p.Y + m[2],
		Y: m[3]*p.X + m[4]*p.Y + m[5],
	}
}

// AffineFromPoints solves the affine transform mapping src[i] to dst[i].
func AffineFromPoints(src, dst [3]Point) (Affine, error) {
	a := mat.NewDense(3, 3, []float64{
		src[0].X, src[0].Y, 1,
		src[1].X, src[1].Y, 1,
		src[2].X, src[2].Y, 1,
	})
	b := mat.NewDense(3, 2, []float64{
		dst[0].X, dst[0].Y,
		dst[1].X, dst[1].Y,
		dst[2].X, dst[2].Y,
	})

	var x mat.Dense
	if err := x.Solve(a, b); err != nil {
		return Affine{}, errors.Wrap(err, "source points are collinear")
	}
	return Affine{
		x.At(0, 0), x.At(1, 0), x.At(2, 0),
		x.At(0, 1), x.At(1, 1), x.At(2, 1),
	}, nil
}

// CropTransform returns the transform warping the oriented rectangle onto an
// upright size x size crop.
func (o OrientedRegion) CropTransform(size float64) (Affine, error) {
	return AffineFromPoints(
		[3]Point{o.RectCorners[1], o.RectCorners[2], o.RectCorners[3]},
		[3]Point{{0, 0}, {size, 0}, {size, size}},
	)
}

// UnitToFrame returns the transform from normalized crop coordinates back to
// frame pixels.
func (o OrientedRegion) UnitToFrame() (Affine, error) {
	return AffineFromPoints(
		[3]Point{{0, 0}, {1, 0}, {1, 1}},
		[3]Point{o.RectCorners[1], o.RectCorners[2], o.RectCorners[3]},
	)
}
