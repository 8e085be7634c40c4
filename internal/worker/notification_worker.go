package worker

// HandlerRegistrar subscribes its event handlers on a dispatcher.
type HandlerRegistrar interface {
	RegisterHandlers()
}

// StartNotificationWorker registers every non-nil registrar's handlers.
func StartNotificationWorker(registrars ...HandlerRegistrar) {
	for _, r := range registrars {
		if r == nil {
			continue
		}
		r.RegisterHandlers()
	}
}
