package discord

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assist-by/cockpit/internal/domain"
	"github.com/assist-by/cockpit/internal/notification"
)

type capture struct {
	mu       sync.Mutex
	paths    []string
	messages []WebhookMessage
	status   int
}

func (c *capture) handler(w http.ResponseWriter, r *http.Request) {
	var msg WebhookMessage
	_ = json.NewDecoder(r.Body).Decode(&msg)

	c.mu.Lock()
	c.paths = append(c.paths, r.URL.Path)
	c.messages = append(c.messages, msg)
	status := c.status
	c.mu.Unlock()

	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
}

func (c *capture) last() WebhookMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages[len(c.messages)-1]
}

func newTestClient(t *testing.T) (*Client, *capture) {
	t.Helper()
	rec := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	t.Cleanup(srv.Close)

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewClient(srv.URL+"/main",
		WithErrorWebhook(srv.URL+"/errors"),
		WithTimeout(time.Second),
		WithClock(func() time.Time { return fixed }),
	)
	return c, rec
}

func TestBotStateChanged(t *testing.T) {
	c, rec := newTestClient(t)
	lev := 5
	bot := domain.Bot{
		ID: 3, Name: "grid-eth", Symbol: "ETHUSDT", Exchange: "binance", StrategyName: "grid",
		MarketType: domain.MarketFutures, Leverage: &lev, IsActive: true,
		LivePnLUSD: decimal.RequireFromString("12.345"),
	}

	require.NoError(t, c.BotStateChanged(bot))

	msg := rec.last()
	require.Len(t, msg.Embeds, 1)
	embed := msg.Embeds[0]
	assert.Contains(t, embed.Title, "봇 시작")
	assert.Equal(t, notification.ColorSuccess, embed.Color)
	assert.Equal(t, "2024-05-01T12:00:00Z", embed.Timestamp)

	fields := map[string]string{}
	for _, f := range embed.Fields {
		fields[f.Name] = f.Value
	}
	assert.Equal(t, "12.35", fields["손익 (USD)"])
	assert.Equal(t, "5x", fields["레버리지"])
	assert.Equal(t, "futures", fields["시장"])
	assert.Equal(t, []string{"/main"}, rec.paths)
}

func TestSessionExpiredUsesErrorWebhook(t *testing.T) {
	c, rec := newTestClient(t)

	require.NoError(t, c.SessionExpired("admin@example.com"))
	require.NoError(t, c.SendError(errors.New("boom")))

	assert.Equal(t, []string{"/errors", "/errors"}, rec.paths)
	assert.Contains(t, rec.messages[0].Embeds[0].Description, "admin@example.com")
	assert.Equal(t, "```boom```", rec.messages[1].Embeds[0].Description)
}

func TestWebhookErrorStatus(t *testing.T) {
	c, rec := newTestClient(t)
	rec.mu.Lock()
	rec.status = http.StatusTooManyRequests
	rec.mu.Unlock()

	err := c.BotCreated(domain.Bot{ID: 1, Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestEmbedLimits(t *testing.T) {
	e := NewEmbed().SetTitle(strings.Repeat("가", 300))
	assert.Equal(t, maxTitleLen, len([]rune(e.Title)))
	assert.True(t, strings.HasSuffix(e.Title, "…"))

	for i := 0; i < 30; i++ {
		e.AddField("f", "v", true)
	}
	assert.Len(t, e.Fields, maxFields)

	e2 := NewEmbed().AddField("empty", "", false)
	assert.Empty(t, e2.Fields)
}

func TestNopNotifier(t *testing.T) {
	var n notification.Notifier = notification.Nop{}
	assert.NoError(t, n.BotCreated(domain.Bot{}))
	assert.NoError(t, n.SessionExpired(""))
}
