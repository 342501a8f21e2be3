package auth

// Known OAuth scopes used by the step-log API.
const (
	ScopeStepsRead  = "steps:read"
	ScopeStepsWrite = "steps:write"
)
