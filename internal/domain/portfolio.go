package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioAsset은 자산별 USD 평가액입니다
type PortfolioAsset struct {
	Asset    string          `json:"asset"`
	USDValue decimal.Decimal `json:"usd_value"`
}

// Portfolio는 한 시점의 포트폴리오 스냅샷입니다
type Portfolio struct {
	Assets    []PortfolioAsset
	FetchedAt time.Time
}

// TotalUSD는 전체 평가액을 합산합니다
func (p Portfolio) TotalUSD() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Assets {
		total = total.Add(a.USDValue)
	}
	return total
}

// IsZero는 아직 조회된 적 없는 스냅샷인지 확인합니다
func (p Portfolio) IsZero() bool {
	return p.FetchedAt.IsZero()
}
