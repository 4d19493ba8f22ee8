package events

const (
	// KindEngineInitFailed identifies an engine that failed to start.
	KindEngineInitFailed Kind = "engine.init_failed"
	// KindPermissionDenied identifies missing audio permission.
	KindPermissionDenied Kind = "engine.permission_denied"
	// KindPermissionGranted identifies re-armed recognition.
	KindPermissionGranted Kind = "engine.permission_granted"
)

// EngineInitFailed carries the engine name and the initialization error.
type EngineInitFailed struct {
	Base
	Engine string
	Err    error
}

// NewEngineInitFailed creates an engine init failed event.
func NewEngineInitFailed(engine string, err error) EngineInitFailed {
	return EngineInitFailed{Base: NewBase(KindEngineInitFailed), Engine: engine, Err: err}
}

// PermissionDenied marks that the engine was refused audio access.
type PermissionDenied struct {
	Base
	Engine string
	Err    error
}

// NewPermissionDenied creates a permission denied event.
func NewPermissionDenied(engine string, err error) PermissionDenied {
	return PermissionDenied{Base: NewBase(KindPermissionDenied), Engine: engine, Err: err}
}

// PermissionGranted marks that audio access is available again.
type PermissionGranted struct{ Base }

// NewPermissionGranted creates a permission granted event.
func NewPermissionGranted() PermissionGranted {
	return PermissionGranted{Base: NewBase(KindPermissionGranted)}
}
