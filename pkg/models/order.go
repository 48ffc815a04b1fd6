package models

// BasketOrderLeg is a single order in a gateway basket
type BasketOrderLeg struct {
	Symbol    string `json:"symbol"`
	Exchange  string `json:"exchange"`
	Action    string `json:"action"`
	Expiry    string `json:"expiry,omitempty"`
	Quantity  int    `json:"quantity"`
	PriceType string `json:"pricetype"`
	Product   string `json:"product"`
}

// BasketRequest asks the gateway to place several orders at once.
// Either Orders or Underlying plus Legs must be set.
type BasketRequest struct {
	Strategy   string           `json:"strategy,omitempty"`
	Orders     []BasketOrderLeg `json:"orders,omitempty"`
	Underlying string           `json:"underlying,omitempty"`
	LotSize    int              `json:"lotSize,omitempty"`
	Legs       []OptionLeg      `json:"legs,omitempty"`
	Exchange   string           `json:"exchange,omitempty"`
	Product    string           `json:"product,omitempty"`
	PriceType  string           `json:"pricetype,omitempty"`
}

// GatewayDebug records the masked request and raw response of a gateway call
type GatewayDebug struct {
	DurationMs int64  `json:"durationMs"`
	Status     int    `json:"status"`
	RequestRaw string `json:"requestRaw"`
	// ResponseRaw is clipped to a fixed size
	ResponseRaw string `json:"responseRaw"`
}

// GatewayResponse is returned for funds and basket calls
type GatewayResponse struct {
	OK       bool         `json:"ok"`
	Data     interface{}  `json:"data"`
	OrderIDs []string     `json:"orderIds,omitempty"`
	Debug    GatewayDebug `json:"debug"`
}

// PositionEventType tags position lifecycle events
type PositionEventType string

const (
	PositionCreated PositionEventType = "created"
	PositionUpdated PositionEventType = "updated"
	PositionDeleted PositionEventType = "deleted"
)

// PositionEvent is published whenever a position changes
type PositionEvent struct {
	Type     PositionEventType `json:"type"`
	Position *Position         `json:"position"`
}
