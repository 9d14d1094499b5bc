package notification

import "github.com/assist-by/cockpit/internal/domain"

const (
	ColorSuccess = 0x00FF00 // 녹색
	ColorError   = 0xFF0000 // 빨간색
	ColorInfo    = 0x0099FF // 파란색
	ColorWarning = 0xFFA500 // 주황색
)

// Notifier는 알림 전송 인터페이스를 정의합니다.
// 전송 실패는 호출자가 로그로만 남기며 화면 상태에는 영향을 주지 않습니다.
type Notifier interface {
	// BotStateChanged는 서버가 확인한 봇 시작/중지를 알립니다
	BotStateChanged(bot domain.Bot) error

	// BotCreated는 새 봇 생성을 알립니다
	BotCreated(bot domain.Bot) error

	// SessionExpired는 인증 만료로 로그아웃되었음을 알립니다
	SessionExpired(email string) error

	// SendError는 에러 알림을 전송합니다
	SendError(err error) error
}

// Nop은 아무것도 전송하지 않는 Notifier입니다
type Nop struct{}

func (Nop) BotStateChanged(domain.Bot) error { return nil }
func (Nop) BotCreated(domain.Bot) error      { return nil }
func (Nop) SessionExpired(string) error      { return nil }
func (Nop) SendError(error) error            { return nil }

// GetColorForBot은 봇 상태에 따른 색상을 반환합니다
func GetColorForBot(bot domain.Bot) int {
	switch {
	case bot.IsActive && bot.IsPaperTrading:
		return ColorInfo
	case bot.IsActive:
		return ColorSuccess
	default:
		return ColorWarning
	}
}
