package dist

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransformRoundTrip(t *testing.T) {
	assert := assert.New(t)

	cases := []struct {
		name string
		tr   Transform
		xs   []float64
	}{
		{"identity", Identity{}, []float64{-5, 0, 3.2}},
		{"log", Log{}, []float64{0.01, 1, 50}},
		{"logit01", NewLogit(), []float64{0.01, 0.5, 0.99}},
		{"logit-bounded", Logit{Low: -2, High: 7}, []float64{-1.9, 0, 6.9}},
	}

	for _, c := range cases {
		for _, x := range c.xs {
			u := c.tr.ToUnconstrained(x)
			back := c.tr.FromUnconstrained(u)
			assert.InDeltaf(x, back, 1e-8, "%s: round trip for x=%f", c.name, x)
		}
	}
}

func TestLogAbsDetJacobianFiniteDifference(t *testing.T) {
	assert := assert.New(t)

	const h = 1e-6
	cases := []struct {
		name string
		tr   Transform
		x    float64
	}{
		{"log", Log{}, 2.0},
		{"logit01", NewLogit(), 0.3},
		{"logit-bounded", Logit{Low: -2, High: 7}, 1.0},
	}

	for _, c := range cases {
		fd := (c.tr.ToUnconstrained(c.x+h) - c.tr.ToUnconstrained(c.x-h)) / (2 * h)
		got := c.tr.LogAbsDetJacobian(c.x)
		assert.InDeltaf(math.Log(math.Abs(fd)), got, 1e-3, "%s at x=%f", c.name, c.x)
	}
}
