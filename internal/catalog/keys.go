package catalog

import (
	"strconv"
	"strings"
)

const (
	// OrderKey holds the JSON array of item ids in display order.
	OrderKey = "product_order"
	// LegacyKey holds the whole item array in one blob (first two storage generations).
	LegacyKey = "yourtop100_data"

	itemPrefix = "item_"
)

// ItemKey returns the key of a single item.
func ItemKey(id int64) string {
	return itemPrefix + strconv.FormatInt(id, 10)
}

// ParseItemKey extracts the id from an item key.
func ParseItemKey(key string) (int64, bool) {
	rest, ok := strings.CutPrefix(key, itemPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
