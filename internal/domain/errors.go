package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrNoScenes       = errors.New("job has no scenes")
	ErrInvalidScene   = errors.New("invalid scene")
	ErrJobInFlight    = errors.New("job generation already in flight")
	ErrJobTerminal    = errors.New("job already finished")
	ErrProviderAuth   = errors.New("provider authentication failed")
	ErrInvalidRequest = errors.New("invalid provider request")
	ErrNoImageSource  = errors.New("scene has no resolvable image source")
)
