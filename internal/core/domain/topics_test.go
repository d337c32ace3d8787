package domain_test

import (
	"testing"
	"time"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestResolveChannel(t *testing.T) {
	tests := []struct {
		destination string
		want        domain.Channel
	}{
		{"/topic/gia/P1", domain.ChannelPrice},
		{"/topic/gia/all", domain.ChannelPrice},
		{"/topic/giant/1", domain.ChannelGlobal},
		{"/topic/voucher/SALE/PERCENT", domain.ChannelVoucher},
		{"/topic/health/status", domain.ChannelHealth},
		{"/topic/chat/room-1", domain.ChannelChat},
		{"/queue/chat", domain.ChannelChat},
		{"/topic/ton-kho/V1", domain.ChannelGlobal},
		{"/queue/orders", domain.ChannelGlobal},
		{"/topic/cache-invalidation", domain.ChannelGlobal},
		{"", domain.ChannelGlobal},
	}

	for _, tt := range tests {
		t.Run(tt.destination, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.ResolveChannel(tt.destination))
		})
	}
}

func TestChannel_Accepts(t *testing.T) {
	assert.True(t, domain.ChannelPrice.Accepts("/topic/gia/P1"))
	assert.False(t, domain.ChannelPrice.Accepts("/topic/voucher/1"))
	assert.True(t, domain.ChannelVoucher.Accepts("/topic/voucher/1/x"))
	assert.True(t, domain.ChannelHealth.Accepts("/topic/health/recovery"))
	assert.False(t, domain.ChannelHealth.Accepts("/queue/health"))
	assert.True(t, domain.ChannelChat.Accepts("/queue/chat"))
	assert.True(t, domain.ChannelGlobal.Accepts("/topic/anything"))
	assert.True(t, domain.ChannelGlobal.Accepts("/queue/orders"))
	assert.False(t, domain.ChannelGlobal.Accepts("/topic/"))
	assert.False(t, domain.ChannelGlobal.Accepts("orders"))
	assert.False(t, domain.Channel("audit").Accepts("/topic/x"))
}

func TestTopicBuilders(t *testing.T) {
	assert.Equal(t, "/topic/gia/P1", domain.PriceTopic("P1"))
	assert.Equal(t, "/topic/gia/all", domain.PriceAllTopic())
	assert.Equal(t, "/topic/ton-kho/V1", domain.InventoryTopic("V1"))
	assert.Equal(t, "/topic/ton-kho/all", domain.InventoryAllTopic())
	assert.Equal(t, "/topic/voucher/SALE/PERCENT", domain.VoucherTopic("SALE", "PERCENT"))
	assert.Equal(t, "/topic/voucher/SALE/default", domain.VoucherTopic("SALE", ""))
	assert.Equal(t, "/topic/don-hang/O1", domain.OrderTopic(" O1 "))
	assert.Equal(t, "/topic/don-hang/all", domain.OrderAllTopic())
}

func TestReceivedEnvelope_HasPayload(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"", false},
		{"null", false},
		{`""`, false},
		{"{}", false},
		{"[]", false},
		{`{"a":1}`, true},
		{"42", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			env := domain.ReceivedEnvelope{Payload: []byte(tt.raw)}
			assert.Equal(t, tt.want, env.HasPayload())
		})
	}
}

func TestMessageEnvelope_IsUserAddressed(t *testing.T) {
	env := domain.NewEnvelope("/queue/orders", map[string]string{"a": "b"}, "ORDER_STATUS", "orders")
	assert.NotEmpty(t, env.MessageID)
	assert.False(t, env.IsUserAddressed())

	env.TargetUser = "bob"
	assert.True(t, env.IsUserAddressed())

	env.Destination = "/topic/don-hang/all"
	assert.False(t, env.IsUserAddressed())
}

func TestClassifyHealth(t *testing.T) {
	tests := []struct {
		name   string
		active int64
		stale  int64
		want   domain.HealthStatus
	}{
		{"no sessions", 0, 0, domain.HealthHealthy},
		{"none stale", 10, 0, domain.HealthHealthy},
		{"one stale", 10, 1, domain.HealthWarning},
		{"exactly half stale", 10, 5, domain.HealthWarning},
		{"majority stale", 10, 6, domain.HealthDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.ClassifyHealth(tt.active, tt.stale))
		})
	}
}

func TestConnectionInfo_IsStale(t *testing.T) {
	now := time.Now()
	info := domain.ConnectionInfo{LastActivity: now.Add(-3 * time.Minute)}
	assert.True(t, info.IsStale(now, 2*time.Minute))

	info.LastActivity = now.Add(-time.Minute)
	assert.False(t, info.IsStale(now, 2*time.Minute))
}

func TestErrorType_Severity(t *testing.T) {
	assert.Equal(t, domain.SeverityCritical, domain.ErrorAuthenticationFailed.Severity())
	assert.Equal(t, domain.SeverityHigh, domain.ErrorConnectionFailed.Severity())
	assert.Equal(t, domain.SeverityHigh, domain.ErrorHeartbeatTimeout.Severity())
	assert.Equal(t, domain.SeverityMedium, domain.ErrorMessageSendFailed.Severity())
	assert.Equal(t, domain.SeverityMedium, domain.ErrorSubscriptionFailed.Severity())
	assert.Equal(t, domain.SeverityLow, domain.ErrorUnknown.Severity())
}

func TestParseErrorType(t *testing.T) {
	assert.Equal(t, domain.ErrorConnectionFailed, domain.ParseErrorType("connection_failed"))
	assert.Equal(t, domain.ErrorHeartbeatTimeout, domain.ParseErrorType(" HEARTBEAT_TIMEOUT "))
	assert.Equal(t, domain.ErrorUnknown, domain.ParseErrorType("disk_full"))
	assert.Equal(t, domain.ErrorUnknown, domain.ParseErrorType(""))
}
