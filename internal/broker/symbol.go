package broker

import (
	"strconv"
	"strings"
	"time"

	"github.com/rzzdr/options-risk-engine/internal/numeric"
	"github.com/rzzdr/options-risk-engine/pkg/models"
)

// FormatExpiryCode renders an expiry as DDMONYY, e.g. 28MAR24
func FormatExpiryCode(expiry time.Time) string {
	return strings.ToUpper(expiry.Format("02Jan06"))
}

// FormatOptionSymbol builds the exchange trading symbol, e.g. NIFTY28MAR2417500CE
func FormatOptionSymbol(underlying string, expiry time.Time, strike float64, optionType models.OptionType) string {
	return strings.ToUpper(strings.TrimSpace(underlying)) +
		FormatExpiryCode(expiry) +
		strconv.FormatFloat(numeric.Round(strike), 'f', 0, 64) +
		strings.ToUpper(string(optionType))
}

// BuildOrders turns strategy legs into basket orders. Quantity is lots times
// lot size; empty exchange, product and price type take the configured defaults.
func (c *Client) BuildOrders(req models.BasketRequest) []models.BasketOrderLeg {
	exchange := firstNonEmpty(req.Exchange, c.config.Exchange)
	product := firstNonEmpty(req.Product, c.config.Product)
	priceType := firstNonEmpty(req.PriceType, c.config.PriceType)
	lotSize := req.LotSize
	if lotSize < 1 {
		lotSize = 1
	}

	orders := make([]models.BasketOrderLeg, 0, len(req.Legs))
	for _, leg := range req.Legs {
		lots := leg.EffectiveLots()
		orders = append(orders, models.BasketOrderLeg{
			Symbol:    FormatOptionSymbol(req.Underlying, leg.Expiry, leg.Strike, leg.OptionType),
			Exchange:  exchange,
			Action:    leg.Action.Verb(),
			Expiry:    FormatExpiryCode(leg.Expiry),
			Quantity:  lots * lotSize,
			PriceType: priceType,
			Product:   product,
		})
	}
	return orders
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
