package discord

import (
	"fmt"
	"strconv"

	"github.com/assist-by/cockpit/internal/domain"
	"github.com/assist-by/cockpit/internal/notification"
)

const footer = "cockpit 🤖"

var _ notification.Notifier = (*Client)(nil)

// BotStateChanged는 봇 시작/중지 알림을 전송합니다
func (c *Client) BotStateChanged(bot domain.Bot) error {
	title := fmt.Sprintf("⏸️ 봇 중지: %s", bot.Name)
	if bot.IsActive {
		title = fmt.Sprintf("▶️ 봇 시작: %s", bot.Name)
	}

	embed := botEmbed(bot).
		SetTitle(title).
		SetColor(notification.GetColorForBot(bot)).
		SetTimestamp(c.now())

	return c.sendToWebhook(c.webhook, WebhookMessage{Embeds: []Embed{*embed}})
}

// BotCreated는 봇 생성 알림을 전송합니다
func (c *Client) BotCreated(bot domain.Bot) error {
	embed := botEmbed(bot).
		SetTitle(fmt.Sprintf("🆕 봇 생성: %s", bot.Name)).
		SetColor(notification.ColorInfo).
		SetTimestamp(c.now())

	return c.sendToWebhook(c.webhook, WebhookMessage{Embeds: []Embed{*embed}})
}

// SessionExpired는 세션 만료 알림을 전송합니다
func (c *Client) SessionExpired(email string) error {
	desc := "인증이 만료되어 로그아웃되었습니다. 다시 로그인해 주세요."
	if email != "" {
		desc = fmt.Sprintf("**%s** 계정의 %s", email, desc)
	}

	embed := NewEmbed().
		SetTitle("🔒 세션 만료").
		SetDescription(desc).
		SetColor(notification.ColorWarning).
		SetFooter(footer).
		SetTimestamp(c.now())

	return c.sendToWebhook(c.errorWebhook, WebhookMessage{Embeds: []Embed{*embed}})
}

// SendError는 에러 알림을 전송합니다
func (c *Client) SendError(err error) error {
	embed := NewEmbed().
		SetTitle("에러 발생").
		SetDescription(fmt.Sprintf("```%v```", err)).
		SetColor(notification.ColorError).
		SetFooter(footer).
		SetTimestamp(c.now())

	return c.sendToWebhook(c.errorWebhook, WebhookMessage{Embeds: []Embed{*embed}})
}

func botEmbed(bot domain.Bot) *Embed {
	mode := "실거래"
	if bot.IsPaperTrading {
		mode = "모의투자"
	}

	embed := NewEmbed().
		SetDescription(fmt.Sprintf("**심볼**: %s\n**거래소**: %s\n**전략**: %s",
			bot.Symbol, bot.Exchange, bot.StrategyName)).
		AddField("ID", strconv.FormatInt(bot.ID, 10), true).
		AddField("시장", string(bot.MarketType), true).
		AddField("모드", mode, true).
		AddField("손익 (USD)", bot.PnL().StringFixed(2), true).
		SetFooter(footer)

	if bot.Leverage != nil {
		embed.AddField("레버리지", fmt.Sprintf("%dx", *bot.Leverage), true)
	}
	return embed
}
