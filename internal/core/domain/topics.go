package domain

import "strings"

const (
	TopicPrefix = "/topic/"
	QueuePrefix = "/queue/"

	TopicPrice             = "/topic/gia"
	TopicInventory         = "/topic/ton-kho"
	TopicVoucher           = "/topic/voucher"
	TopicOrder             = "/topic/don-hang"
	TopicInventoryAlerts   = "/topic/alerts/inventory"
	TopicCacheInvalidation = "/topic/cache-invalidation"
	TopicHealth            = "/topic/health"
	TopicHealthStatus      = "/topic/health/status"
	TopicHealthRecovery    = "/topic/health/recovery"
	TopicHealthProbe       = "/topic/health/probe"
	TopicChat              = "/topic/chat"

	QueueOrders = "/queue/orders"
	QueueChat   = "/queue/chat"

	allSuffix = "all"
)

// PriceTopic returns the per-product price destination.
func PriceTopic(productID string) string { return join(TopicPrice, productID) }

// PriceAllTopic is the dashboard aggregate for every price change.
func PriceAllTopic() string { return join(TopicPrice, allSuffix) }

func InventoryTopic(variantID string) string { return join(TopicInventory, variantID) }
func InventoryAllTopic() string              { return join(TopicInventory, allSuffix) }

// VoucherTopic addresses a voucher by id and type.
func VoucherTopic(voucherID, voucherType string) string {
	if voucherType == "" {
		voucherType = "default"
	}
	return join(join(TopicVoucher, voucherID), voucherType)
}
func VoucherAllTopic() string { return join(TopicVoucher, allSuffix) }

func OrderTopic(orderID string) string { return join(TopicOrder, orderID) }
func OrderAllTopic() string            { return join(TopicOrder, allSuffix) }

func join(base, segment string) string {
	return base + "/" + strings.Trim(strings.TrimSpace(segment), "/")
}

// IsTopicDestination reports a broadcast destination.
func IsTopicDestination(destination string) bool {
	return strings.HasPrefix(destination, TopicPrefix) && len(destination) > len(TopicPrefix)
}

// IsUserDestination reports a user-scoped queue destination.
func IsUserDestination(destination string) bool {
	return strings.HasPrefix(destination, QueuePrefix) && len(destination) > len(QueuePrefix)
}

// hasSegmentPrefix matches prefix as a whole path segment ("/topic/gia" matches
// "/topic/gia/1" but not "/topic/giant").
func hasSegmentPrefix(destination, prefix string) bool {
	if !strings.HasPrefix(destination, prefix) {
		return false
	}
	rest := destination[len(prefix):]
	return rest == "" || rest[0] == '/'
}

// ResolveChannel maps a destination to its logical channel. The first matching
// rule wins and anything unmatched goes to the global channel.
func ResolveChannel(destination string) Channel {
	switch {
	case hasSegmentPrefix(destination, TopicPrice):
		return ChannelPrice
	case hasSegmentPrefix(destination, TopicVoucher):
		return ChannelVoucher
	case hasSegmentPrefix(destination, TopicHealth):
		return ChannelHealth
	case hasSegmentPrefix(destination, TopicChat), hasSegmentPrefix(destination, QueueChat):
		return ChannelChat
	default:
		return ChannelGlobal
	}
}

// Accepts reports whether a destination has the shape expected on channel c.
func (c Channel) Accepts(destination string) bool {
	switch c {
	case ChannelPrice:
		return hasSegmentPrefix(destination, TopicPrice) && IsTopicDestination(destination)
	case ChannelVoucher:
		return hasSegmentPrefix(destination, TopicVoucher) && IsTopicDestination(destination)
	case ChannelHealth:
		return hasSegmentPrefix(destination, TopicHealth) && IsTopicDestination(destination)
	case ChannelChat:
		return hasSegmentPrefix(destination, TopicChat) || hasSegmentPrefix(destination, QueueChat)
	case ChannelGlobal:
		return IsTopicDestination(destination) || IsUserDestination(destination)
	}
	return false
}

// IsValid checks if the channel is one of the logical channels.
func (c Channel) IsValid() bool {
	for _, known := range AllChannels {
		if c == known {
			return true
		}
	}
	return false
}
