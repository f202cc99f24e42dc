package anchor

import "errors"

var (
	ErrWatchActive      = errors.New("anchor watch already active")
	ErrWatchInactive    = errors.New("no anchor watch active")
	ErrPositionUnknown  = errors.New("vessel position unknown")
	ErrDistanceUnknown  = errors.New("distance to anchor unknown")
	ErrInvalidValue     = errors.New("invalid value")
	ErrNoActiveAlarm    = errors.New("no active alarm")
	ErrNoCheckInPending = errors.New("no check-in pending")
	ErrEngineStopped    = errors.New("anchor engine stopped")
	ErrAlreadyRunning   = errors.New("anchor engine already running")
)
