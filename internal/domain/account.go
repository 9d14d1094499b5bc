package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletBalance는 자산별 지갑 잔고를 표현합니다
type WalletBalance struct {
	Asset   string          `json:"asset"`   // 자산 심볼 (예: USDT, BTC)
	Balance decimal.Decimal `json:"balance"` // 보유 수량
}

// Transaction은 지갑 입출금/거래 내역을 표현합니다
type Transaction struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"` // deposit, withdrawal, trade 등
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// DepositAddress는 자산 입금 주소 정보입니다
type DepositAddress struct {
	Asset   string `json:"asset"`
	Address string `json:"address"`
	Network string `json:"network,omitempty"`
	Memo    string `json:"memo,omitempty"`
}
