package dist

import (
	"math"
	"testing"

	"github.com/nessmc/pfilter/rnd"
	"github.com/stretchr/testify/assert"
)

func TestNewNormalPriorRejectsNonPositiveSigma(t *testing.T) {
	_, err := NewNormalPrior(0, 0)
	assert.Error(t, err)
	_, err = NewNormalPrior(0, -1)
	assert.Error(t, err)
}

func TestNormalPriorBoundsAndTransform(t *testing.T) {
	assert := assert.New(t)
	p, err := NewNormalPrior(1, 2)
	assert.NoError(err)

	low, high := p.Bounds()
	assert.Equal(math.Inf(-1), low)
	assert.Equal(math.Inf(1), high)
	assert.IsType(Identity{}, p.Transform())
	assert.Equal(1.0, p.Mean())
	assert.Equal(2.0, p.Std())
}

func TestNormalPriorSampleIsReproducibleGivenSeed(t *testing.T) {
	assert := assert.New(t)
	p, err := NewNormalPrior(0, 1)
	assert.NoError(err)

	a := p.Sample(rnd.New(1))
	b := p.Sample(rnd.New(1))
	assert.Equal(a, b)
}

func TestGammaPriorRejectsNonPositiveParams(t *testing.T) {
	_, err := NewGammaPrior(0, 1)
	assert.Error(t, err)
	_, err = NewGammaPrior(1, -1)
	assert.Error(t, err)
}

func TestGammaPriorSupportAndTransform(t *testing.T) {
	assert := assert.New(t)
	p, err := NewGammaPrior(2, 1)
	assert.NoError(err)

	low, high := p.Bounds()
	assert.Equal(0.0, low)
	assert.Equal(math.Inf(1), high)
	assert.IsType(Log{}, p.Transform())
	assert.Equal(math.Inf(-1), p.LogPDF(-1))
	assert.Greater(p.LogPDF(1), math.Inf(-1))
}

func TestBetaPriorSupportAndTransform(t *testing.T) {
	assert := assert.New(t)
	p, err := NewBetaPrior(2, 2)
	assert.NoError(err)

	low, high := p.Bounds()
	assert.Equal(0.0, low)
	assert.Equal(1.0, high)
	assert.Equal(math.Inf(-1), p.LogPDF(-0.1))
	assert.Equal(math.Inf(-1), p.LogPDF(1.1))
	assert.Greater(p.LogPDF(0.5), math.Inf(-1))
}

func TestUniformPriorRejectsDegenerateBounds(t *testing.T) {
	_, err := NewUniformPrior(1, 1)
	assert.Error(t, err)
	_, err = NewUniformPrior(2, 1)
	assert.Error(t, err)
}

func TestUniformPriorSampleWithinBounds(t *testing.T) {
	assert := assert.New(t)
	p, err := NewUniformPrior(-1, 1)
	assert.NoError(err)

	src := rnd.New(3)
	for i := 0; i < 50; i++ {
		x := p.Sample(src)
		assert.GreaterOrEqual(x, -1.0)
		assert.Less(x, 1.0)
	}
	low, high := p.Bounds()
	assert.Equal(-1.0, low)
	assert.Equal(1.0, high)
}
