package agent

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Override types consumed by the workflow.
const (
	OverrideSkipPosting   = "skip_posting"
	OverrideForceApproval = "force_content_approval"
)

// DefaultOverrideDuration applies when no duration is given.
const DefaultOverrideDuration = 60 * time.Minute

// Override is one active manual override.
type Override struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	SetAt     time.Time `json:"set_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Overrides stores time-limited manual overrides of agent behavior.
// Expired entries are dropped lazily on read.
type Overrides struct {
	mu     sync.Mutex
	active map[string]Override
	now    func() time.Time
}

// NewOverrides creates an empty override store.
func NewOverrides() *Overrides {
	return &Overrides{
		active: make(map[string]Override),
		now:    time.Now,
	}
}

// Set activates an override for the given duration, replacing any
// existing override of the same type.
func (o *Overrides) Set(overrideType, value string, duration time.Duration) Override {
	if duration <= 0 {
		duration = DefaultOverrideDuration
	}
	now := o.now()
	override := Override{
		Type:      overrideType,
		Value:     value,
		SetAt:     now,
		ExpiresAt: now.Add(duration),
	}

	o.mu.Lock()
	o.active[overrideType] = override
	o.mu.Unlock()

	log.Warn().
		Str("override", overrideType).
		Str("value", value).
		Time("expires_at", override.ExpiresAt).
		Msg("manual override activated")
	return override
}

// Remove deactivates an override, reporting whether it was set.
func (o *Overrides) Remove(overrideType string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[overrideType]; !ok {
		return false
	}
	delete(o.active, overrideType)
	log.Info().Str("override", overrideType).Msg("manual override removed")
	return true
}

// IsActive reports whether an override is set and unexpired, and its
// value.
func (o *Overrides) IsActive(overrideType string) (bool, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pruneLocked()
	if override, ok := o.active[overrideType]; ok {
		return true, override.Value
	}
	return false, ""
}

// Active returns all unexpired overrides.
func (o *Overrides) Active() []Override {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pruneLocked()
	overrides := make([]Override, 0, len(o.active))
	for _, override := range o.active {
		overrides = append(overrides, override)
	}
	return overrides
}

func (o *Overrides) pruneLocked() {
	now := o.now()
	for key, override := range o.active {
		if now.After(override.ExpiresAt) {
			delete(o.active, key)
			log.Info().Str("override", key).Msg("manual override expired")
		}
	}
}
