package handler

import "regexp"

// Request bodies. Field validation beyond binding tags lives in the
// endpoint handlers so the error messages stay specific.

type registerRequest struct {
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	Age         int    `json:"age" binding:"required"`
	ParentEmail string `json:"parent_email"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type consentRequest struct {
	Token string `json:"token" binding:"required"`
}

type updateProfileRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

type storyRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content"`
	Genre   string `json:"genre"`
}

type requestChangesRequest struct {
	Note string `json:"note" binding:"required"`
}

type commentRequest struct {
	Type            string `json:"type" binding:"required"`
	Content         string `json:"content" binding:"required"`
	HighlightedText string `json:"highlighted_text"`
}

type resolveCommentRequest struct {
	Resolved bool `json:"resolved"`
}

type assistRequest struct {
	Kind   string `json:"kind" binding:"required"`
	Prompt string `json:"prompt"`
}

type checkoutRequest struct {
	Tier string `json:"tier" binding:"required"`
}

type cancelSubscriptionRequest struct {
	Immediately bool `json:"immediately"`
}

type setRolesRequest struct {
	Roles []string `json:"roles" binding:"required"`
}

type addAIKeyRequest struct {
	Provider string `json:"provider" binding:"required"`
	Label    string `json:"label" binding:"required"`
	Key      string `json:"key" binding:"required"`
}

type setAIKeyActiveRequest struct {
	Active bool `json:"active"`
}

// Validation constants shared by the auth endpoints.
const (
	minUsernameLength = 3
	maxUsernameLength = 30
	minPasswordLength = 8
	maxPasswordLength = 100
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
