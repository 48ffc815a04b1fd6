package broker

import (
	"encoding/json"
	"sort"
	"strconv"
)

var orderIDKeys = map[string]bool{
	"order_id":     true,
	"orderId":      true,
	"orderid":      true,
	"nOrdNo":       true,
	"oms_order_id": true,
	"omsOrderId":   true,
	"id":           true,
}

// CollectOrderIDs walks a decoded JSON document and returns every string or
// numeric value stored under a known order id key, deduplicated in the order found.
// Object keys are visited in sorted order.
func CollectOrderIDs(payload interface{}) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	var visit func(v interface{})
	visit = func(v interface{}) {
		switch t := v.(type) {
		case []interface{}:
			for _, item := range t {
				visit(item)
			}
		case map[string]interface{}:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				val := t[k]
				if orderIDKeys[k] {
					switch id := val.(type) {
					case string:
						add(id)
					case float64:
						add(strconv.FormatFloat(id, 'f', -1, 64))
					case json.Number:
						add(id.String())
					}
				}
				visit(val)
			}
		}
	}
	visit(payload)
	return out
}
