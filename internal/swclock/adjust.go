package swclock

import "fmt"

// Adjust applies the AdjustInterface request (§4.1's adjust operation and
// §4.4's AdjustInterface) and returns the full readback populated on every
// call, successful or not.
func (c *Clock) Adjust(req AdjustRequest) (AdjustResponse, error) {
	if !validModes(req.Modes) {
		c.mu.RLock()
		resp := c.readbackLocked()
		c.mu.RUnlock()
		resp.ReturnCode = TimeBad
		return resp, fmt.Errorf("adjust modes=%#x: %w", req.Modes, ErrInvalidArgument)
	}

	var slewTarget, slewPrev int64
	var didSlew bool

	c.mu.Lock()
	c.rebaseLocked()

	if req.Modes&FlagFrequency != 0 {
		c.freqScaledPpm = req.FreqScaledPpm
	}
	if req.Modes&FlagOffset != 0 {
		offsetNs := req.offsetNs()
		slewPrev = c.remainingPhaseNs
		c.remainingPhaseNs += offsetNs
		c.piIntErrorS = 0
		c.piFreqPpm = 0
		slewTarget = c.remainingPhaseNs
		didSlew = true
	}
	if req.Modes&FlagSetOffset != 0 {
		c.baseRtNs += req.offsetNs()
		c.remainingPhaseNs = 0
		c.piIntErrorS = 0
		c.piFreqPpm = 0
	}
	if req.Modes&FlagStatus != 0 {
		c.status = req.Status
	}
	if req.Modes&FlagTAI != 0 {
		c.tai = req.TAI
	}
	if req.Modes&FlagMaxError != 0 {
		c.maxErrorUs = req.MaxErrorUs
	}
	if req.Modes&FlagEstError != 0 {
		c.estErrorUs = req.EstErrorUs
	}
	if req.Modes&FlagTimeConst != 0 {
		c.constant = req.TimeConstant
	}

	resp := c.readbackLocked()
	resp.ReturnCode = TimeOK
	c.mu.Unlock()

	if c.events != nil {
		c.events.LogAdjtimeCall(uint32(req.Modes), req.offsetNs(), req.FreqScaledPpm)
		if didSlew {
			c.events.LogPhaseSlewStart(slewTarget, slewPrev, 0, 0)
		}
		c.events.LogAdjtimeReturn(uint32(req.Modes), req.offsetNs(), req.FreqScaledPpm, resp.ReturnCode)
	}

	return resp, nil
}

func (c *Clock) readbackLocked() AdjustResponse {
	return AdjustResponse{
		Status:        c.status,
		FreqScaledPpm: c.freqScaledPpm,
		MaxErrorUs:    c.maxErrorUs,
		EstErrorUs:    c.estErrorUs,
		Constant:      c.constant,
		Precision:     c.precisionConstant,
		Tick:          c.tick,
		TAI:           c.tai,
	}
}

func validModes(m AdjustFlag) bool {
	const known = FlagOffset | FlagFrequency | FlagMaxError | FlagEstError |
		FlagStatus | FlagTimeConst | FlagTAI | FlagSetOffset | FlagMicro | FlagNano
	return m&^known == 0
}
