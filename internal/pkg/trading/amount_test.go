package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlippagePrice(t *testing.T) {
	assert.InDelta(t, 100.05, SlippagePrice(100, 0.0005, true), 1e-9)
	assert.InDelta(t, 99.95, SlippagePrice(100, 0.0005, false), 1e-9)
	assert.Equal(t, 100.0, SlippagePrice(100, 0, true))
}

func TestFeeAndNotional(t *testing.T) {
	assert.InDelta(t, 200.0, Notional(2, 100), 1e-12)
	assert.InDelta(t, 0.2, Fee(2, 100, 0.001), 1e-12)
}

func TestVWAP(t *testing.T) {
	assert.Equal(t, 0.0, VWAP(0, 0, 0, 0))
	assert.Equal(t, 100.0, VWAP(0, 0, 1, 100))
	assert.InDelta(t, 105.0, VWAP(1, 100, 1, 110), 1e-9)
	// no float drift over many small fills
	size, avg := 0.0, 0.0
	for i := 0; i < 1000; i++ {
		avg = VWAP(size, avg, 0.001, 100)
		size += 0.001
	}
	assert.InDelta(t, 100.0, avg, 1e-9)
}

func TestStopLevels(t *testing.T) {
	stop, take := StopLevels(100, 0.02, 0.04, true)
	assert.InDelta(t, 98.0, stop, 1e-9)
	assert.InDelta(t, 104.0, take, 1e-9)

	stop, take = StopLevels(100, 0.02, 0.04, false)
	assert.InDelta(t, 102.0, stop, 1e-9)
	assert.InDelta(t, 96.0, take, 1e-9)
}

func TestCalcCloseAmount(t *testing.T) {
	assert.Equal(t, 0.0, CalcCloseAmount(0, 0.5))
	assert.Equal(t, 0.0, CalcCloseAmount(10, 0))
	assert.InDelta(t, 5.0, CalcCloseAmount(10, 0.5), 1e-9)
	assert.Equal(t, 10.0, CalcCloseAmount(10, 1.5), "ratio capped at 1")
}
