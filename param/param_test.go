package param

import (
	"testing"

	"github.com/nessmc/pfilter/dist"
	"github.com/nessmc/pfilter/rnd"
	"github.com/stretchr/testify/assert"
)

func TestFixedParameter(t *testing.T) {
	assert := assert.New(t)

	p := NewFixed("c", 2.0)
	assert.False(p.Trainable())
	assert.Equal(2.0, p.Value())
	assert.Equal(2.0, p.TValue())
	assert.Equal(0.0, p.LogPrior(2.0))
}

func TestTrainableParameterTransformRoundTrip(t *testing.T) {
	assert := assert.New(t)

	prior, err := dist.NewBetaPrior(2, 2)
	assert.NoError(err)

	p, err := NewTrainable("alpha", prior, 0.5)
	assert.NoError(err)
	assert.True(p.Trainable())

	tv := p.TValue()
	assert.NoError(p.SetTValue(tv))
	assert.InDelta(0.5, p.Value(), 1e-9)
}

func TestSetValueOutsideSupport(t *testing.T) {
	assert := assert.New(t)

	prior, err := dist.NewBetaPrior(2, 2)
	assert.NoError(err)

	p, err := NewTrainable("alpha", prior, 0.5)
	assert.NoError(err)

	err = p.SetValue(1.5)
	assert.ErrorIs(err, dist.ErrInvalidSupport)
}

func TestInitialize(t *testing.T) {
	assert := assert.New(t)

	prior, err := dist.NewNormalPrior(0, 1)
	assert.NoError(err)

	p, err := NewTrainable("mu", prior, 0)
	assert.NoError(err)

	src := rnd.New(7)
	p.Initialize(src)
	assert.NotPanics(func() { p.Value() })
}
