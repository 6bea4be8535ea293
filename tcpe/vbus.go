package tcpe

import (
	"github.com/oxplot/go-pdsink/logging"
	"github.com/oxplot/go-pdsink/tcpcdriver/fusb302"
)

const (
	vbusFirstCode = fusb302.MDACCounts / 2
	vbusMaxStep   = fusb302.MDACCounts / 2
)

// vbusSearch tracks an incremental search for the MDAC threshold at which
// the comparator flips. Each sample moves the threshold one step, doubling
// the step while the comparator keeps its value and halving it on a flip.
type vbusSearch struct {
	last     int8 // last programmed code, -1 if none
	step     int8 // signed step that led to last
	widening bool
	lastComp bool
}

func (v *vbusSearch) reset() {
	*v = vbusSearch{last: -1, step: vbusMaxStep, widening: true}
}

// UpdateVbus takes one VBUS comparator sample and programs the next MDAC
// threshold. It returns the measured VBUS in millivolts and true when the
// search has bracketed the voltage to a single MDAC step. Once converged it
// keeps oscillating around the threshold and reports again every time the
// comparator flips.
//
// The reported voltage is the lower bound of the bracket, so it's accurate to
// one step of fusb302.MDACVbusCountMv. A VBUS below the lowest threshold is
// reported as 0 on every sample. Init must have succeeded for the
// readings to be meaningful.
func (sm *StateMachine) UpdateVbus() (uint16, bool) {
	v := &sm.vbus
	next := int(vbusFirstCode)
	converged := -1
	floor := false

	if v.last >= 0 {
		comp, err := sm.pc.ReadComp()
		if err != nil {
			logging.Log().Errorf("tcpe: read vbus comparator: %s", err)
			return 0, false
		}
		switch {
		case v.last == 0 && !v.lastComp && !comp:
			// below the lowest threshold, nothing left to search
			floor = true
		case v.step == -1 && !v.lastComp && comp:
			converged = int(v.last)
			v.widening = true
		case v.step == 1 && v.lastComp && !comp:
			converged = int(v.last) - 1
			v.widening = true
		case v.lastComp != comp:
			v.widening = false
		}

		step := v.step
		if step < 0 {
			step = -step
		}
		if !v.widening {
			step = max(1, step/2)
		} else if converged < 0 {
			step = min(vbusMaxStep, step*2)
		}
		if !comp {
			step = -step
		}
		v.step = step
		v.lastComp = comp
		next = min(fusb302.MDACCounts-1, max(0, int(v.last)+int(step)))
	}

	if err := sm.pc.SetMDAC(uint8(next)); err != nil {
		logging.Log().Errorf("tcpe: set vbus threshold %d: %s", next, err)
	} else {
		v.last = int8(next)
	}

	if floor {
		return 0, true
	}
	if converged < 0 {
		return 0, false
	}
	return uint16(converged+1) * fusb302.MDACVbusCountMv, true
}
