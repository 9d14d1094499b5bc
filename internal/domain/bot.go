package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Bot은 서버가 소유한 트레이딩 봇의 캐시된 사본입니다
type Bot struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Symbol         string          `json:"symbol"`
	Exchange       string          `json:"exchange"`
	StrategyName   string          `json:"strategy_name"`
	StrategyParams map[string]any  `json:"strategy_params"`
	IsActive       bool            `json:"is_active"`
	IsPaperTrading bool            `json:"is_paper_trading"`
	MarketType     MarketType      `json:"market_type"`
	Leverage       *int            `json:"leverage,omitempty"`
	PaperPnLUSD    decimal.Decimal `json:"paper_pnl_usd"`
	LivePnLUSD     decimal.Decimal `json:"live_pnl_usd"`
}

// Clone은 가변 필드까지 복사한 사본을 반환합니다.
// StrategyParams는 JSON에서 온 중첩 객체와 배열까지 복사합니다.
func (b Bot) Clone() Bot {
	if b.StrategyParams != nil {
		b.StrategyParams = cloneParams(b.StrategyParams)
	}
	if b.Leverage != nil {
		lev := *b.Leverage
		b.Leverage = &lev
	}
	return b
}

func cloneParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneParams(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// PnL은 모드에 맞는 손익을 반환합니다
func (b Bot) PnL() decimal.Decimal {
	if b.IsPaperTrading {
		return b.PaperPnLUSD
	}
	return b.LivePnLUSD
}

// CreateBotRequest는 봇 생성 요청 본문입니다
type CreateBotRequest struct {
	Name           string         `json:"name"`
	Symbol         string         `json:"symbol"`
	Exchange       string         `json:"exchange"`
	StrategyName   string         `json:"strategy_name"`
	StrategyParams map[string]any `json:"strategy_params"`
	IsPaperTrading bool           `json:"is_paper_trading"`
	MarketType     MarketType     `json:"market_type"`
	Leverage       *int           `json:"leverage,omitempty"`
}

// ErrInvalidBotRequest는 봇 생성 요청이 유효하지 않을 때 반환됩니다
var ErrInvalidBotRequest = errors.New("잘못된 봇 생성 요청입니다")

// Validate는 요청을 서버로 보내기 전에 필수 필드를 확인합니다
func (r CreateBotRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(r.Symbol) == "" {
		missing = append(missing, "symbol")
	}
	if strings.TrimSpace(r.Exchange) == "" {
		missing = append(missing, "exchange")
	}
	if strings.TrimSpace(r.StrategyName) == "" {
		missing = append(missing, "strategy_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: 필수 항목 누락 (%s)", ErrInvalidBotRequest, strings.Join(missing, ", "))
	}

	if _, err := ParseMarketType(string(r.MarketType)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBotRequest, err)
	}

	if r.Leverage != nil {
		if *r.Leverage < MinLeverage || *r.Leverage > MaxLeverage {
			return fmt.Errorf("%w: 레버리지는 %d 이상 %d 이하이어야 합니다", ErrInvalidBotRequest, MinLeverage, MaxLeverage)
		}
		if r.MarketType == MarketSpot && *r.Leverage != 1 {
			return fmt.Errorf("%w: 현물 시장은 레버리지를 사용할 수 없습니다", ErrInvalidBotRequest)
		}
	}

	return nil
}

// TradeLog는 봇의 개별 체결 기록입니다
type TradeLog struct {
	ID        int64           `json:"id"`
	BotID     int64           `json:"bot_id"`
	Side      TradeSide       `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Notional은 체결 금액(수량 * 가격)을 반환합니다
func (t TradeLog) Notional() decimal.Decimal {
	return t.Amount.Mul(t.Price)
}
