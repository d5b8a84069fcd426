package validation

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

// InvalidateRequest carries the pattern for a cache invalidation.
type InvalidateRequest struct {
	Pattern string `json:"pattern" validate:"required,cache_pattern,max=256"`
}
