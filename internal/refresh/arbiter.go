package refresh

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrApply is returned when the driver rejects a forced refresh rate. The
// arbiter has already fallen back to the maximum rate when it is returned.
var ErrApply = errors.New("refresh rate apply failed")

// RateSetter applies a refresh rate to the hardware.
type RateSetter interface {
	SetRefreshRate(rate uint32) error
}

// Policy is the refresh-rate state of a display session.
type Policy struct {
	Min         uint32 `json:"min_refresh_rate"`
	Max         uint32 `json:"max_refresh_rate"`
	Current     uint32 `json:"current_refresh_rate"`
	Force       uint32 `json:"force_refresh_rate"`
	Metadata    uint32 `json:"metadata_refresh_rate"`
	UseMetadata bool   `json:"use_metadata_refresh_rate"`
}

// Arbiter merges content cadence, client overrides and the panel bounds into
// one refresh rate. It is not safe for concurrent use; the session serializes
// access.
type Arbiter struct {
	drv    RateSetter
	logger *slog.Logger
	policy Policy
}

// New returns an Arbiter for a panel supporting [min, max] Hz. Current starts
// at max, which is what the panel runs at after mode set.
func New(drv RateSetter, min, max uint32, logger *slog.Logger) (*Arbiter, error) {
	if min == 0 || max < min {
		return nil, fmt.Errorf("invalid refresh rate bounds [%d, %d]", min, max)
	}
	return &Arbiter{
		drv:    drv,
		logger: logger.With("component", "refresh"),
		policy: Policy{Min: min, Max: max, Current: max, UseMetadata: true},
	}, nil
}

// Policy returns a copy of the current policy state.
func (a *Arbiter) Policy() Policy { return a.policy }

// Current returns the last successfully applied rate.
func (a *Arbiter) Current() uint32 { return a.policy.Current }

// SetUseMetadata toggles content-driven rate selection.
func (a *Arbiter) SetUseMetadata(enable bool) { a.policy.UseMetadata = enable }

// SetMetadataRate records the content frame-rate hint, clamped to the panel
// bounds. Zero clears it.
func (a *Arbiter) SetMetadataRate(rate uint32) {
	switch {
	case rate == 0:
	case rate < a.policy.Min:
		rate = a.policy.Min
	case rate > a.policy.Max:
		rate = a.policy.Max
	}
	a.policy.Metadata = rate
}

// SetMetadataRefreshRate picks the rate for a committed frame. It does nothing
// while a client force rate is active.
func (a *Arbiter) SetMetadataRefreshRate(oneUpdatingLayer bool) {
	if a.policy.Force != 0 {
		return
	}

	rate := a.policy.Max
	if a.policy.UseMetadata && oneUpdatingLayer && a.policy.Metadata != 0 {
		rate = a.policy.Metadata
	}

	if err := a.drv.SetRefreshRate(rate); err != nil {
		a.logger.Warn("metadata refresh rate rejected, restoring max", "rate", rate, "error", err)
		a.policy.Current = a.policy.Max
		return
	}
	a.policy.Current = rate
}

// ForceRefreshRate applies a client override. A rate outside the panel range
// is ignored; 0 clears the override.
func (a *Arbiter) ForceRefreshRate(rate uint32) error {
	if rate != 0 && (rate < a.policy.Min || rate > a.policy.Max) {
		a.logger.Debug("force refresh rate out of range, ignored", "rate", rate,
			"min", a.policy.Min, "max", a.policy.Max)
		return nil
	}

	target := rate
	a.policy.Force = rate
	if rate == 0 {
		target = a.policy.Max
	}

	err := a.drv.SetRefreshRate(target)
	if err == nil {
		a.policy.Current = target
		return nil
	}

	a.logger.Error("setting forced refresh rate failed", "rate", rate, "error", err)
	a.policy.Force = 0
	a.policy.Current = a.policy.Max
	if target != a.policy.Max {
		if ferr := a.drv.SetRefreshRate(a.policy.Max); ferr != nil {
			a.logger.Error("restoring max refresh rate failed", "rate", a.policy.Max, "error", ferr)
		}
	}
	return fmt.Errorf("%w: %d Hz: %v", ErrApply, target, err)
}

// ApplyIdleRate applies the rate used for out-of-band refreshes: the force
// rate if one is set, otherwise the panel minimum.
func (a *Arbiter) ApplyIdleRate() {
	rate := a.policy.Force
	if rate == 0 {
		rate = a.policy.Min
	}

	if err := a.drv.SetRefreshRate(rate); err != nil {
		a.logger.Error("setting refresh rate failed", "rate", rate, "error", err)
		a.policy.Current = a.policy.Max
		return
	}
	a.policy.Current = rate
}
