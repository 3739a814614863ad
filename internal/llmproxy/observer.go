package llmproxy

// Observer is the LLM proxy's inspection hook (spec.md §4.4): called once
// per request, after the upstream round-trip for non-streaming requests or
// immediately (with a nil response) for streaming requests, since the body
// isn't buffered in that case. Observers must not block the response path
// — implementations should hand off to a goroutine or channel rather than
// do synchronous I/O here.
type Observer interface {
	Observe(call Call)
}

// Call is what an Observer sees: the resolved provider/model, the request
// payload as decoded JSON, and the (possibly patched) response payload —
// nil for streaming requests.
type Call struct {
	Endpoint string // "chat.completions", "responses", or "models"
	Provider string
	Model    string
	Request  map[string]interface{}
	Response map[string]interface{} // nil for streaming calls
}

// NoopObserver discards every call. It is the default when no tracer or
// logger is wired.
type NoopObserver struct{}

func (NoopObserver) Observe(Call) {}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(Call)

func (f ObserverFunc) Observe(c Call) { f(c) }
