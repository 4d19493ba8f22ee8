package events

const (
	// KindServiceStarted identifies start of the voice loop.
	KindServiceStarted Kind = "service.started"
	// KindServiceStopped identifies the last event of a voice loop run.
	KindServiceStopped Kind = "service.stopped"
)

// ServiceStarted marks the start of the voice loop.
type ServiceStarted struct{ Base }

// NewServiceStarted creates a service started event.
func NewServiceStarted() ServiceStarted {
	return ServiceStarted{Base: NewBase(KindServiceStarted)}
}

// ServiceStopped marks the end of the voice loop.
type ServiceStopped struct{ Base }

// NewServiceStopped creates a service stopped event.
func NewServiceStopped() ServiceStopped {
	return ServiceStopped{Base: NewBase(KindServiceStopped)}
}
