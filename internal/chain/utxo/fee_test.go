package utxo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillwallet/quill/internal/chain"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

func TestEstimateSize(t *testing.T) {
	tests := []struct {
		name     string
		inputs   int
		outputs  int
		expected uint64
	}{
		{"one input two outputs", 1, 2, 226},
		{"two inputs one output", 2, 1, 340},
		{"empty shape", 0, 0, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EstimateSize(tt.inputs, tt.outputs))
		})
	}
}

func TestAbsoluteFee(t *testing.T) {
	assert.Equal(t, uint64(1130), AbsoluteFee(5, 1, 2))
	assert.Equal(t, uint64(3400), AbsoluteFee(10, 2, 1))
}

func TestFeeModelRate(t *testing.T) {
	model := NewFeeModel(&NetworkFees{RegularSatPerByte: 5, PrioritySatPerByte: 12})

	t.Run("regular", func(t *testing.T) {
		rate, err := model.Rate(chain.FeeLevelRegular, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), rate)
	})

	t.Run("priority", func(t *testing.T) {
		rate, err := model.Rate(chain.FeeLevelPriority, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(12), rate)
	})

	t.Run("custom", func(t *testing.T) {
		rate, err := model.Rate(chain.FeeLevelCustom, 33)
		require.NoError(t, err)
		assert.Equal(t, uint64(33), rate)
	})

	t.Run("none is rejected", func(t *testing.T) {
		_, err := model.Rate(chain.FeeLevelNone, 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, qerr.ErrFeeTooLow)
	})

	t.Run("zero rate clamps up", func(t *testing.T) {
		empty := NewFeeModel(nil)
		rate, err := empty.Rate(chain.FeeLevelRegular, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(MinFeeRate), rate)
	})

	t.Run("runaway rate clamps down", func(t *testing.T) {
		rate, err := model.Rate(chain.FeeLevelCustom, 1_000_000)
		require.NoError(t, err)
		assert.Equal(t, uint64(MaxFeeRate), rate)
	})
}
