package types

import "github.com/go-gl/mathgl/mgl32"

const floatCmpEpsilon = 1e-6

// Mat4 is a column-major 4x4 matrix.
type Mat4 = mgl32.Mat4

// Identity matrix.
func Ident4() Mat4 {
	return mgl32.Ident4()
}

// Build a world to camera (view) matrix.
func LookAt(eye, target, up Vec3) Mat4 {
	return mgl32.LookAtV(mgl32.Vec3(eye), mgl32.Vec3(target), mgl32.Vec3(up))
}

// Transform a point (w = 1) by m.
func TransformPoint(m Mat4, p Vec3) Vec3 {
	v := m.Mul4x1(mgl32.Vec4{p[0], p[1], p[2], 1})
	if v[3] != 0 && v[3] != 1 {
		return Vec3{v[0] / v[3], v[1] / v[3], v[2] / v[3]}
	}
	return Vec3{v[0], v[1], v[2]}
}

// Transform a direction (w = 0) by m.
func TransformDir(m Mat4, d Vec3) Vec3 {
	v := m.Mul4x1(mgl32.Vec4{d[0], d[1], d[2], 0})
	return Vec3{v[0], v[1], v[2]}
}
