package dto

// IssueTokenRequest: payload for minting a development access token
type IssueTokenRequest struct {
	UserID string   `json:"user_id" binding:"required,max=64"`
	Role   string   `json:"role" binding:"omitempty,oneof=admin teacher student"`
	Scopes []string `json:"scopes,omitempty"`
}

// TokenResponse: response payload carrying an access token
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}
