package display

import (
	"fmt"
	"strings"
)

// Operation is an out-of-band request dispatched by Session.Perform. The set
// of operations is closed; see the types below.
type Operation interface {
	Tag() Tag
	isOperation()
}

// SetMetadataRefreshEnable toggles content-driven refresh rate selection.
// It has no effect while the disable property is set.
type SetMetadataRefreshEnable struct {
	Enable bool
}

// ForceRefreshRate pins the refresh rate; 0 clears the override.
type ForceRefreshRate struct {
	Rate uint32
}

// SetDisplayMode switches the panel to a driver-defined mode.
type SetDisplayMode struct {
	Mode uint32
}

// SetSolidFill enables or disables the diagnostic solid fill.
type SetSolidFill struct {
	Enable bool
	Color  uint32
}

func (SetMetadataRefreshEnable) Tag() Tag { return TagSetMetadataRefreshEnable }
func (ForceRefreshRate) Tag() Tag         { return TagForceRefreshRate }
func (SetDisplayMode) Tag() Tag           { return TagSetDisplayMode }

func (o SetSolidFill) Tag() Tag {
	if o.Enable {
		return TagSetSolidFill
	}
	return TagUnsetSolidFill
}

func (SetMetadataRefreshEnable) isOperation() {}
func (ForceRefreshRate) isOperation()         {}
func (SetDisplayMode) isOperation()           {}
func (SetSolidFill) isOperation()             {}

// Tag is the legacy numeric operation code carried by older clients together
// with a single integer argument.
type Tag uint32

const (
	TagSetMetadataRefreshEnable Tag = iota + 1
	TagForceRefreshRate
	TagSetDisplayMode
	TagSetSolidFill
	TagUnsetSolidFill
)

var tagNames = map[Tag]string{
	TagSetMetadataRefreshEnable: "set_metadata_refresh_enable",
	TagForceRefreshRate:         "force_refresh_rate",
	TagSetDisplayMode:           "set_display_mode",
	TagSetSolidFill:             "set_solid_fill",
	TagUnsetSolidFill:           "unset_solid_fill",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", uint32(t))
}

// ParseTag resolves an operation name (case-insensitive) to its tag.
func ParseTag(name string) (Tag, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range tagNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown operation %q", ErrInvalidArgument, name)
}

// ParseOperation converts the legacy tag plus integer argument form into an
// Operation.
func ParseOperation(tag Tag, arg uint32) (Operation, error) {
	switch tag {
	case TagSetMetadataRefreshEnable:
		return SetMetadataRefreshEnable{Enable: arg != 0}, nil
	case TagForceRefreshRate:
		return ForceRefreshRate{Rate: arg}, nil
	case TagSetDisplayMode:
		return SetDisplayMode{Mode: arg}, nil
	case TagSetSolidFill:
		return SetSolidFill{Enable: true, Color: arg}, nil
	case TagUnsetSolidFill:
		return SetSolidFill{Enable: false, Color: arg}, nil
	default:
		return nil, fmt.Errorf("%w: unknown operation %s", ErrInvalidArgument, tag)
	}
}
