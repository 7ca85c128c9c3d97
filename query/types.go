package query

// RenderAttempts requests the recorded backend attempt log. Session scopes
// the read to that session's isolated log; empty reads the shared log.
type RenderAttempts struct {
	Session string
}

func (RenderAttempts) Type() string { return "render:attempts" }

func (RenderAttempts) Validate() error { return nil }

// RenderBackends requests the registered backend set with default-mask
// membership for discovery surfaces.
type RenderBackends struct{}

func (RenderBackends) Type() string { return "render:backends" }

func (RenderBackends) Validate() error { return nil }
