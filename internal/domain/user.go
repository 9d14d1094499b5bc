package domain

// UserProfile은 인증된 사용자 정보를 표현합니다
type UserProfile struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	FullName    string `json:"full_name,omitempty"`
	IsSuperuser bool   `json:"is_superuser"`
}

// LoginRequest는 로그인 요청 본문입니다
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse는 로그인 성공 시 발급되는 토큰 정보입니다
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
