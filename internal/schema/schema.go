package schema

// EventKind defines the category of an event carried by the bus.
type EventKind uint16

const (
	EventUnknown EventKind = iota
	EventMarketTick
	EventSignal
	EventOrder
	EventFill
)

// Kinds lists every routable event kind.
func Kinds() []EventKind {
	return []EventKind{EventMarketTick, EventSignal, EventOrder, EventFill}
}

func (k EventKind) String() string {
	switch k {
	case EventMarketTick:
		return "market_tick"
	case EventSignal:
		return "signal"
	case EventOrder:
		return "order"
	case EventFill:
		return "fill"
	default:
		return "unknown"
	}
}

// Event is the tagged union carried by the bus. Events are immutable once
// published; handlers must not mutate them.
type Event interface {
	Kind() EventKind
}

// Side describes trade direction.
type Side uint16

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseSide maps the wire representation to a Side.
func ParseSide(s string) Side {
	switch s {
	case "BUY", "buy":
		return SideBuy
	case "SELL", "sell":
		return SideSell
	default:
		return SideUnknown
	}
}

// OrderKind describes the order type.
type OrderKind uint16

const (
	OrderKindUnknown OrderKind = iota
	OrderKindMarket
	OrderKindLimit
)

func (k OrderKind) String() string {
	switch k {
	case OrderKindMarket:
		return "MARKET"
	case OrderKindLimit:
		return "LIMIT"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus tracks the lifecycle of an order. Filled, Rejected and
// Cancelled are terminal.
type OrderStatus uint16

const (
	OrderStatusUnknown OrderStatus = iota
	OrderStatusPending
	OrderStatusFilled
	OrderStatusRejected
	OrderStatusCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "PENDING"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusRejected:
		return "REJECTED"
	case OrderStatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further status transitions are allowed.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusRejected, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// TradeType distinguishes opening and closing trades for risk validation.
type TradeType uint16

const (
	TradeTypeUnknown TradeType = iota
	TradeTypeEntry
	TradeTypeExit
)

func (t TradeType) String() string {
	switch t {
	case TradeTypeEntry:
		return "entry"
	case TradeTypeExit:
		return "exit"
	default:
		return "unknown"
	}
}
