package maintenance

import "errors"

var (
	// ErrAlreadyStarted is returned by Monitor.Start on a running monitor.
	ErrAlreadyStarted = errors.New("monitor already running")

	// ErrNotStarted is returned by Monitor.Stop on a monitor that is not running.
	ErrNotStarted = errors.New("monitor not running")
)
