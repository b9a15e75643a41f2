package migrate

import (
	"encoding/json"
	"fmt"

	"github.com/MrSnakeDoc/showcase/internal/domain"
)

// parseBlob decodes a whole-array payload. Non-JSON, non-array and empty arrays are
// malformed; invalid or duplicated items are dropped.
func parseBlob(raw []byte) ([]domain.Item, int, error) {
	var items []domain.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(items) == 0 {
		return nil, 0, fmt.Errorf("%w: empty item array", ErrMalformedPayload)
	}
	out, dropped := domain.Normalize(items)
	if len(out) == 0 {
		return nil, dropped, fmt.Errorf("%w: no valid items", ErrMalformedPayload)
	}
	return out, dropped, nil
}
