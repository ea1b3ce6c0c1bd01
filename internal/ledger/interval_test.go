package ledger_test

import (
	"errors"
	"testing"
	"time"

	"fieldTracker/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMillisCodec тестирует хранение длительности в миллисекундах
func TestMillisCodec(t *testing.T) {
	for _, d := range []time.Duration{0, 59 * time.Second, 60 * time.Second, 3723 * time.Second, 86400 * time.Second} {
		assert.Equal(t, d, ledger.DecodeMillis(ledger.EncodeMillis(d)), d.String())
	}
}

// TestFormatInterval_ParseBack тестирует, что текстовая форма читается обратно без потерь
func TestFormatInterval_ParseBack(t *testing.T) {
	for _, d := range []time.Duration{0, 59 * time.Second, 60 * time.Second, 3723 * time.Second, 86400 * time.Second, 1500 * time.Millisecond} {
		parsed, err := ledger.ParseInterval(ledger.FormatInterval(d))
		require.NoError(t, err)
		assert.Equal(t, d, parsed, d.String())
	}

	assert.Equal(t, "1:02:03", ledger.FormatInterval(3723*time.Second))
	assert.Equal(t, "24:00:00", ledger.FormatInterval(24*time.Hour))
	assert.Equal(t, "0:00:01.500", ledger.FormatInterval(1500*time.Millisecond))
}

// TestParseInterval тестирует разбор старых текстовых форматов
func TestParseInterval(t *testing.T) {
	tests := []struct {
		raw      string
		expected time.Duration
	}{
		{"0s", 0},
		{"59s", 59 * time.Second},
		{"60s", 60 * time.Second},
		{"3723 seconds", 3723 * time.Second},
		{"3723.5s", 3723*time.Second + 500*time.Millisecond},
		{"86400", 24 * time.Hour},
		{"00:00:59", 59 * time.Second},
		{"0:01:00", time.Minute},
		{"1:02:03", 3723 * time.Second},
		{"01:02:03.250", 3723*time.Second + 250*time.Millisecond},
		{"1 day 00:00:00", 24 * time.Hour},
		{"2 days 01:00:00", 49 * time.Hour},
		{" 59 sec ", 59 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			d, err := ledger.ParseInterval(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

// TestParseInterval_Invalid тестирует отказ на некорректном вводе
func TestParseInterval_Invalid(t *testing.T) {
	for _, raw := range []string{"", "abc", "1:2", "-5s", "1 mon", "NaNs"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ledger.ParseInterval(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ledger.ErrInvalidInterval))
		})
	}
}
