package telemetry

import "go.opentelemetry.io/otel/attribute"

// Attribute keys recorded on lifecycle spans.
const (
	AttrSessionID   = "lifespan.session_id"
	AttrPhase       = "lifespan.phase"
	AttrWorker      = "lifespan.worker"
	AttrLoop        = "lifespan.loop"
	AttrMessageKind = "lifespan.message.kind"
	AttrDetail      = "lifespan.detail"
	AttrReleases    = "lifespan.teardown.releases"
)

// Span names.
const (
	SpanStartup         = "lifespan.startup"
	SpanShutdown        = "lifespan.shutdown"
	SpanSupervisorStart = "lifespan.supervisor.start"
	SpanHookSetup       = "lifespan.hook.setup"
	SpanHookTeardown    = "lifespan.hook.teardown"
)

// SessionID returns the session ID attribute.
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// Phase returns the phase attribute.
func Phase(phase string) attribute.KeyValue {
	return attribute.String(AttrPhase, phase)
}

// Worker returns the worker attribute.
func Worker(worker string) attribute.KeyValue {
	return attribute.String(AttrWorker, worker)
}

// Loop returns the driver loop attribute.
func Loop(loop uint64) attribute.KeyValue {
	return attribute.Int64(AttrLoop, int64(loop))
}

// MessageKind returns the message kind attribute.
func MessageKind(kind string) attribute.KeyValue {
	return attribute.String(AttrMessageKind, kind)
}

// Detail returns the failure detail attribute.
func Detail(detail string) attribute.KeyValue {
	return attribute.String(AttrDetail, detail)
}

// Releases returns the teardown release count attribute.
func Releases(n int) attribute.KeyValue {
	return attribute.Int(AttrReleases, n)
}
