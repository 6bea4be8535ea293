package tcpe_test

import (
	"testing"

	"github.com/oxplot/go-pdsink/tcpcdriver/fusb302"
	"github.com/oxplot/go-pdsink/tcpcdriver/fusb302/fusb302sim"
	"github.com/oxplot/go-pdsink/tcpe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVbusSM(mv uint16) (*tcpe.StateMachine, *fusb302sim.Chip) {
	chip := fusb302sim.New()
	chip.VbusMv = mv
	clock := &fakeClock{}
	return tcpe.New(fusb302.New(chip, clock), clock), chip
}

func TestUpdateVbusConverges(t *testing.T) {
	sm, chip := newVbusSM(17400)

	for i := 0; i < 7; i++ {
		_, ok := sm.UpdateVbus()
		require.False(t, ok, "sample %d", i)
	}
	assert.Equal(t, byte(fusb302.RegMeasureVBus|40), chip.Register(fusb302.RegMeasure))

	mv, ok := sm.UpdateVbus()
	require.True(t, ok)
	assert.Equal(t, uint16(17220), mv)

	// keeps reporting while oscillating around the threshold
	for i := 0; i < 4; i++ {
		mv, ok = sm.UpdateVbus()
		assert.True(t, ok)
		assert.Equal(t, uint16(17220), mv)
	}
}

func TestUpdateVbusFirstSample(t *testing.T) {
	sm, chip := newVbusSM(5000)
	_, ok := sm.UpdateVbus()
	assert.False(t, ok)
	assert.Equal(t, byte(fusb302.RegMeasureVBus|32), chip.Register(fusb302.RegMeasure))
	assert.Equal(t, 0, chip.Reads[fusb302.RegStatus0])
}

func TestUpdateVbusFollowsChange(t *testing.T) {
	sm, chip := newVbusSM(5000)
	var mv uint16
	for i := 0; i < 8; i++ {
		mv, _ = sm.UpdateVbus()
	}
	assert.Equal(t, uint16(4620), mv)

	chip.VbusMv = 9000
	for i := 0; i < 20; i++ {
		if v, ok := sm.UpdateVbus(); ok {
			mv = v
		}
	}
	assert.Equal(t, uint16(8820), mv)
}

func TestUpdateVbusNoVoltage(t *testing.T) {
	sm, chip := newVbusSM(0)
	for i := 0; i < 2; i++ {
		_, ok := sm.UpdateVbus()
		assert.False(t, ok)
	}
	for i := 0; i < 5; i++ {
		mv, ok := sm.UpdateVbus()
		assert.True(t, ok)
		assert.Equal(t, uint16(0), mv)
	}
	assert.Equal(t, byte(fusb302.RegMeasureVBus), chip.Register(fusb302.RegMeasure))
}

func TestUpdateVbusDropsToZero(t *testing.T) {
	sm, chip := newVbusSM(5000)
	for i := 0; i < 8; i++ {
		sm.UpdateVbus()
	}
	chip.VbusMv = 0
	var mv uint16 = 1
	for i := 0; i < 12; i++ {
		if v, ok := sm.UpdateVbus(); ok {
			mv = v
		}
	}
	assert.Equal(t, uint16(0), mv)
}

func TestUpdateVbusReadFailure(t *testing.T) {
	sm, chip := newVbusSM(17400)
	sm.UpdateVbus()
	chip.FailReads(fusb302.RegStatus0, 1)
	_, ok := sm.UpdateVbus()
	assert.False(t, ok)
	// threshold left as is
	assert.Equal(t, byte(fusb302.RegMeasureVBus|32), chip.Register(fusb302.RegMeasure))
	assert.Equal(t, 1, chip.Writes[fusb302.RegMeasure])
}

func TestUpdateVbusWriteFailure(t *testing.T) {
	sm, chip := newVbusSM(17400)
	chip.FailWrites(fusb302.RegMeasure, 1)
	sm.UpdateVbus()
	sm.UpdateVbus()
	// nothing was programmed, so the second sample starts over
	assert.Equal(t, byte(fusb302.RegMeasureVBus|32), chip.Register(fusb302.RegMeasure))
	assert.Equal(t, 0, chip.Reads[fusb302.RegStatus0])
}

func TestResetKeepsVbusSearch(t *testing.T) {
	sm, _ := newVbusSM(17400)
	for i := 0; i < 7; i++ {
		sm.UpdateVbus()
	}
	sm.Reset()
	mv, ok := sm.UpdateVbus()
	assert.True(t, ok)
	assert.Equal(t, uint16(17220), mv)
}
