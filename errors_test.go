package brood

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	r := require.New(t)

	a := errors.New("a")
	b := errors.New("b")

	r.NoError(Aggregate())
	r.NoError(Aggregate(nil, nil))
	r.Equal(a, Aggregate(a))
	r.Equal(a, Aggregate(nil, a, nil))

	err := Aggregate(a, b)
	var agg *AggregateError
	r.ErrorAs(err, &agg)
	r.Equal([]error{a, b}, agg.Errors)
	r.ErrorIs(err, a)
	r.ErrorIs(err, b)
}

func TestAggregateFlattens(t *testing.T) {
	r := require.New(t)

	a := errors.New("a")
	b := errors.New("b")
	c := errors.New("c")

	err := Aggregate(Aggregate(a, b), c)
	var agg *AggregateError
	r.ErrorAs(err, &agg)
	r.Equal([]error{a, b, c}, agg.Errors)
}

func TestAggregateKeepsWrappedAggregates(t *testing.T) {
	r := require.New(t)

	a := errors.New("a")
	b := errors.New("b")
	wrapped := fmt.Errorf("context: %w", Aggregate(a, b))

	// A wrapped aggregate is an opaque leaf; flattening it would lose
	// the wrapping.
	err := Aggregate(wrapped, errors.New("c"))
	var agg *AggregateError
	r.ErrorAs(err, &agg)
	r.Len(agg.Errors, 2)
	r.Equal(wrapped, agg.Errors[0])
}

func TestAggregateErrorMessage(t *testing.T) {
	r := require.New(t)

	err := Aggregate(errors.New("first"), errors.New("second"))
	r.Contains(err.Error(), "2 tasks failed")
	r.Contains(err.Error(), "first")
	r.Contains(err.Error(), "second")
}

func TestIsCancelled(t *testing.T) {
	r := require.New(t)

	r.False(IsCancelled(nil))
	r.False(IsCancelled(errors.New("plain")))

	c := &Cancelled{}
	r.True(IsCancelled(c))
	r.True(IsCancelled(fmt.Errorf("wrapped: %w", c)))
	r.True(IsCancelled(Aggregate(errors.New("other"), c)))
	r.Equal("brood: task cancelled", c.Error())
}
