package display

import "os"

// FileProbe reports boot completion once a marker file exists.
type FileProbe struct {
	Path string
}

func (p FileProbe) Completed() bool {
	_, err := os.Stat(p.Path)
	return err == nil
}
