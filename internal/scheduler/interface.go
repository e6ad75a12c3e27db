package scheduler

import "github.com/mattjoyce/hwcd/internal/layer"

//go:generate mockgen -destination=mocks/mock_scheduler.go -package=mocks github.com/mattjoyce/hwcd/internal/scheduler Display,Source

// Display is the session side of the frame loop.
type Display interface {
	Frame(contents *layer.Contents) error
	Refresh() error
	RefreshRate() uint32
}

// Source produces frame requests and takes them back once composed.
type Source interface {
	Next() (contents *layer.Contents, changed bool, err error)
	Release(contents *layer.Contents)
}
