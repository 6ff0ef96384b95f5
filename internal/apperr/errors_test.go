package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("load tier: %w", NotFound("tier", "tier_gold"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrStorage))

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "tier", nf.Resource)
	assert.Equal(t, "tier_gold", nf.ID)
}

func TestStorageWrapsOnce(t *testing.T) {
	cause := errors.New("connection reset")
	assert.Nil(t, Storage("get_count", nil))

	err := Storage("increment", cause)
	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, cause))

	again := Storage("outer", err)
	assert.Same(t, err, again)
}

func TestConfigurationError(t *testing.T) {
	err := &ConfigurationError{PriceID: "price_x", Msg: "price is not mapped to a tier"}
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "price_x")
}
