package decision

import "time"

// CooldownStatus is the result of a cooldown gate check.
type CooldownStatus struct {
	Active      bool
	RemainingMs int64
}

// CooldownTracker remembers when each rule last fired an actionable
// decision. One tracker is owned by exactly one decision module and is
// only touched under the owning agent's serial tick discipline, so it
// carries no lock.
type CooldownTracker struct {
	lastFired map[int]time.Time
	now       func() time.Time
}

// NewCooldownTracker creates an empty tracker.
func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{
		lastFired: make(map[int]time.Time),
		now:       time.Now,
	}
}

// Record marks the rule as fired now.
func (t *CooldownTracker) Record(ruleIndex int) {
	t.lastFired[ruleIndex] = t.now()
}

// Check reports whether the rule is still cooling down and how long
// remains. A rule with no record or a zero cooldown is always clear;
// at exactly cooldownSeconds elapsed the rule is clear again.
func (t *CooldownTracker) Check(ruleIndex, cooldownSeconds int) CooldownStatus {
	if cooldownSeconds == 0 {
		return CooldownStatus{}
	}
	last, ok := t.lastFired[ruleIndex]
	if !ok {
		return CooldownStatus{}
	}
	elapsed := t.now().Sub(last).Milliseconds()
	remaining := int64(cooldownSeconds)*1000 - elapsed
	if remaining <= 0 {
		return CooldownStatus{}
	}
	return CooldownStatus{Active: true, RemainingMs: remaining}
}

// Reset clears every record.
func (t *CooldownTracker) Reset() {
	t.lastFired = make(map[int]time.Time)
}
