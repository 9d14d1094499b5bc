package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestCreateBotRequest_Validate(t *testing.T) {
	base := func() CreateBotRequest {
		return CreateBotRequest{
			Name:         "grid",
			Symbol:       "BTCUSDT",
			Exchange:     "binance",
			StrategyName: "grid",
			MarketType:   MarketSpot,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*CreateBotRequest)
		wantErr string
	}{
		{"정상", func(*CreateBotRequest) {}, ""},
		{"이름 누락", func(r *CreateBotRequest) { r.Name = "  " }, "name"},
		{"여러 필드 누락", func(r *CreateBotRequest) { r.Symbol = ""; r.StrategyName = "" }, "symbol, strategy_name"},
		{"알 수 없는 시장", func(r *CreateBotRequest) { r.MarketType = "margin" }, "margin"},
		{"선물 레버리지", func(r *CreateBotRequest) { r.MarketType = MarketFutures; r.Leverage = intPtr(20) }, ""},
		{"레버리지 0", func(r *CreateBotRequest) { r.MarketType = MarketFutures; r.Leverage = intPtr(0) }, "레버리지"},
		{"레버리지 상한 초과", func(r *CreateBotRequest) { r.MarketType = MarketFutures; r.Leverage = intPtr(126) }, "레버리지"},
		{"현물 레버리지 1 허용", func(r *CreateBotRequest) { r.Leverage = intPtr(1) }, ""},
		{"현물 레버리지", func(r *CreateBotRequest) { r.Leverage = intPtr(3) }, "현물"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidBotRequest)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBot_CloneIsIndependent(t *testing.T) {
	b := Bot{ID: 1, StrategyParams: map[string]any{"grids": 10}, Leverage: intPtr(5)}
	c := b.Clone()

	c.StrategyParams["grids"] = 20
	*c.Leverage = 10

	assert.Equal(t, 10, b.StrategyParams["grids"])
	assert.Equal(t, 5, *b.Leverage)
}

func TestBot_CloneCopiesNestedParams(t *testing.T) {
	b := Bot{ID: 1, StrategyParams: map[string]any{
		"bands": map[string]any{"upper": 2.0, "lower": -2.0},
		"steps": []any{0.5, map[string]any{"size": 1.0}},
	}}
	c := b.Clone()

	c.StrategyParams["bands"].(map[string]any)["upper"] = 3.0
	c.StrategyParams["steps"].([]any)[0] = 9.0
	c.StrategyParams["steps"].([]any)[1].(map[string]any)["size"] = 4.0

	assert.Equal(t, 2.0, b.StrategyParams["bands"].(map[string]any)["upper"])
	assert.Equal(t, 0.5, b.StrategyParams["steps"].([]any)[0])
	assert.Equal(t, 1.0, b.StrategyParams["steps"].([]any)[1].(map[string]any)["size"])
}

func TestBot_PnL(t *testing.T) {
	b := Bot{PaperPnLUSD: decimal.NewFromInt(10), LivePnLUSD: decimal.NewFromInt(-3)}
	assert.True(t, b.PnL().Equal(decimal.NewFromInt(-3)))

	b.IsPaperTrading = true
	assert.True(t, b.PnL().Equal(decimal.NewFromInt(10)))
}

func TestBot_DecodesServerPayload(t *testing.T) {
	payload := `{
		"id": 7, "name": "trend", "symbol": "ETHUSDT", "exchange": "binance",
		"strategy_name": "macd", "strategy_params": {"ema": 200},
		"is_active": true, "is_paper_trading": false, "market_type": "futures",
		"leverage": 5, "paper_pnl_usd": "0", "live_pnl_usd": "-12.5"
	}`

	var b Bot
	require.NoError(t, json.Unmarshal([]byte(payload), &b))
	assert.Equal(t, int64(7), b.ID)
	assert.Equal(t, MarketFutures, b.MarketType)
	require.NotNil(t, b.Leverage)
	assert.Equal(t, 5, *b.Leverage)
	assert.True(t, b.LivePnLUSD.Equal(decimal.RequireFromString("-12.5")))
}

func TestTradeLog_Notional(t *testing.T) {
	l := TradeLog{Side: Buy, Amount: decimal.RequireFromString("0.25"), Price: decimal.RequireFromString("64000"), Timestamp: time.Now()}
	assert.True(t, l.Notional().Equal(decimal.NewFromInt(16000)))
	assert.True(t, l.Side.Valid())
	assert.False(t, TradeSide("hold").Valid())
}

func TestPortfolio(t *testing.T) {
	var empty Portfolio
	assert.True(t, empty.IsZero())
	assert.True(t, empty.TotalUSD().IsZero())

	p := Portfolio{
		Assets: []PortfolioAsset{
			{Asset: "BTC", USDValue: decimal.RequireFromString("100.10")},
			{Asset: "USDT", USDValue: decimal.RequireFromString("0.20")},
		},
		FetchedAt: time.Now(),
	}
	assert.False(t, p.IsZero())
	assert.Equal(t, "100.30", p.TotalUSD().StringFixed(2))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "loading", StatusLoading.String())
	assert.Equal(t, "succeeded", StatusSucceeded.String())
	assert.Equal(t, "failed", StatusFailed.String())
}
