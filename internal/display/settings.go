package display

import "github.com/mattjoyce/hwcd/internal/layer"

// Settings is the client policy a session accumulates through Perform. It is
// what gets persisted and replayed on the next start.
type Settings struct {
	ForceRefreshRate      uint32          `json:"force_refresh_rate"`
	MetadataRefreshEnable bool            `json:"metadata_refresh_enable"`
	DisplayMode           uint32          `json:"display_mode"`
	DisplayModeSet        bool            `json:"display_mode_set"`
	SolidFill             layer.SolidFill `json:"solid_fill"`
}

// DefaultSettings is the policy of a fresh session.
func DefaultSettings() Settings {
	return Settings{MetadataRefreshEnable: true}
}

// Operations returns the operations that reproduce s on a fresh session.
// Defaults are skipped.
func (s Settings) Operations() []Operation {
	var ops []Operation
	if !s.MetadataRefreshEnable {
		ops = append(ops, SetMetadataRefreshEnable{Enable: false})
	}
	if s.ForceRefreshRate != 0 {
		ops = append(ops, ForceRefreshRate{Rate: s.ForceRefreshRate})
	}
	if s.DisplayModeSet {
		ops = append(ops, SetDisplayMode{Mode: s.DisplayMode})
	}
	if s.SolidFill.Enabled {
		ops = append(ops, SetSolidFill{Enable: true, Color: s.SolidFill.Color})
	}
	return ops
}

func (s *Settings) apply(op Operation) {
	switch o := op.(type) {
	case SetMetadataRefreshEnable:
		s.MetadataRefreshEnable = o.Enable
	case ForceRefreshRate:
		s.ForceRefreshRate = o.Rate
	case SetDisplayMode:
		s.DisplayMode = o.Mode
		s.DisplayModeSet = true
	case SetSolidFill:
		s.SolidFill = layer.SolidFill{Enabled: o.Enable, Color: o.Color}
	}
}
