package auth

// Known OAuth scopes used by the practice engine.
const (
	ScopePracticeRead  = "practice:read"
	ScopePracticeWrite = "practice:write"
	ScopePracticeAdmin = "practice:admin"
)
