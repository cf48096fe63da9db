package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFloat(t *testing.T) {
	t.Parallel()

	tests := map[float64]string{
		5:        "5.0",
		0.1:      "0.1",
		-12.25:   "-12.25",
		1e9:      "1000000000.0",
		53.12345: "53.12345",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatFloat(in))
	}
}

func TestParseFloat(t *testing.T) {
	t.Parallel()

	v, err := parseFloat(" 12.5 ")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	for _, bad := range []string{"12,5", "NaN", "Inf", "abc"} {
		_, err := parseFloat(bad)
		assert.Error(t, err, bad)
	}
}

func TestDecodeBase64_Variants(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"aGk/Pz4+", "aGk_Pz4-", "aGk", "aGk="} {
		_, err := decodeBase64(in)
		assert.NoError(t, err, in)
	}
	_, err := decodeBase64("***")
	assert.Error(t, err)
}

func TestClassification(t *testing.T) {
	t.Parallel()

	c, ok := ParseClassification("s")
	require.True(t, ok)
	assert.Equal(t, ClassificationSecret, c)
	assert.Equal(t, "S", c.Code())
	assert.True(t, ClassificationTopSecret > ClassificationConfidential)

	c, ok = ParseClassification("X")
	assert.False(t, ok)
	assert.Equal(t, ClassificationNone, c)
}
