package request

// RegisterRequest is the request body for registering an account
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	Class           string `json:"class,omitempty"`
	EnableTwoFactor bool   `json:"enable_two_factor,omitempty"`
}

// LoginRequest is the request body for logging in
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SecondFactorRequest is the request body for submitting a TOTP code
type SecondFactorRequest struct {
	Code string `json:"code"`
}

// VerifyEmailRequest is the request body for consuming a verification token
type VerifyEmailRequest struct {
	Token string `json:"token"`
}
