package domain

// Profile is the role-specific view embedded in login responses. Fields are
// owned by the account directory and only read here.
type Profile struct {
	Role   Role           `json:"role"`
	Limits map[string]int `json:"limits,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}
