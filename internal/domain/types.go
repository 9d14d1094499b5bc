package domain

import "fmt"

// Status는 비동기 작업의 진행 상태를 정의합니다
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSucceeded
	StatusFailed
)

// String은 Status의 문자열 표현을 반환합니다
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TradeSide는 거래 방향을 정의합니다
type TradeSide string

const (
	Buy  TradeSide = "buy"
	Sell TradeSide = "sell"
)

// Valid는 거래 방향이 buy/sell 중 하나인지 확인합니다
func (s TradeSide) Valid() bool {
	return s == Buy || s == Sell
}

// MarketType은 봇이 거래하는 시장 유형을 정의합니다
type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketFutures MarketType = "futures"
)

// ParseMarketType은 문자열을 MarketType으로 변환합니다
func ParseMarketType(s string) (MarketType, error) {
	switch MarketType(s) {
	case MarketSpot, MarketFutures:
		return MarketType(s), nil
	default:
		return "", fmt.Errorf("지원하지 않는 시장 유형: %q", s)
	}
}

// 레버리지 허용 범위
const (
	MinLeverage = 1
	MaxLeverage = 125
)
