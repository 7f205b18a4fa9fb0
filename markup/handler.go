package markup

// Handler receives parser events in document order.
// Implementations react to events; they never pull from the parser.
type Handler interface {
	StartElement(name string)
	EndElement(name string)
	CharData(text string)
	EndDocument()
}

// Failer is implemented by handlers that can latch a fatal error.
// Drivers stop issuing events once Err returns non-nil.
type Failer interface {
	Err() error
}

// handlerErr returns the latched error of h, if it has one.
func handlerErr(h Handler) error {
	if f, ok := h.(Failer); ok {
		return f.Err()
	}
	return nil
}
