package display

// Property keys consulted by the session.
const (
	PropDisableMetadataDynFPS = "persist.metadata_dynfps.disable"
	PropFBWidth               = "sdm.fb_size_width"
	PropFBHeight              = "sdm.fb_size_height"
)

// Properties is a read-only key to integer lookup. Implementations may reload
// values underneath; the session re-reads dynamic keys when it needs them.
type Properties interface {
	GetProperty(key string) (int, bool)
}

// Invalidator asks the compositing client to redraw asynchronously.
type Invalidator interface {
	Invalidate()
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func()

func (f InvalidatorFunc) Invalidate() { f() }

// CPUHint signals a sustained single-layer update workload to the scheduler.
type CPUHint interface {
	Init(props Properties) error
	Set()
	Reset()
}

// BootProbe reports whether the boot animation has finished.
type BootProbe interface {
	Completed() bool
}

// Publisher receives session events.
type Publisher interface {
	Publish(eventType string, data any)
}

// SettingsSaver persists the client policy after every successful operation.
type SettingsSaver interface {
	SaveSettings(displayID string, s Settings) error
}
