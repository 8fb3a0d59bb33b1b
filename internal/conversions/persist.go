package conversions

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickwarner/openadtrack/internal/models"
)

// StateName is the kvstore blob the queue persists itself under.
const StateName = "conversion_queue"

// itemState mirrors the legacy on-disk shape of one pending conversion. The
// timestamp is a decimal string of Unix seconds so the value survives any
// platform's number handling unchanged.
type itemState struct {
	TimestampInSeconds  string `json:"timestamp_in_seconds"`
	CampaignID          string `json:"campaign_id"`
	CreativeSetID       string `json:"creative_set_id"`
	CreativeInstanceID  string `json:"creative_instance_id"`
	AdvertiserID        string `json:"advertiser_id"`
	ConversionID        string `json:"conversion_id"`
	AdvertiserPublicKey string `json:"advertiser_public_key,omitempty"`
	UUID                string `json:"uuid"`
}

type queueState struct {
	AdConversions []itemState `json:"ad_conversions"`
}

// marshalQueue encodes items into the documented persistence format.
func marshalQueue(items []models.ConversionQueueItem) ([]byte, error) {
	state := queueState{AdConversions: make([]itemState, 0, len(items))}
	for _, item := range items {
		state.AdConversions = append(state.AdConversions, itemState{
			TimestampInSeconds:  strconv.FormatInt(item.ConfirmAt.Unix(), 10),
			CampaignID:          item.CampaignID,
			CreativeSetID:       item.CreativeSetID,
			CreativeInstanceID:  item.CreativeInstanceID,
			AdvertiserID:        item.AdvertiserID,
			ConversionID:        item.ConversionID,
			AdvertiserPublicKey: item.AdvertiserPublicKey,
			UUID:                item.PlacementID,
		})
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal conversion queue: %w", err)
	}
	return data, nil
}

// DecodeState decodes a persisted queue blob without constructing a Queue.
// Read-only consumers (reporting tools) use it to inspect pending
// conversions.
func DecodeState(data []byte) ([]models.ConversionQueueItem, error) {
	return unmarshalQueue(data)
}

// unmarshalQueue decodes the persistence format. Malformed state is an error;
// it is never coerced to an empty queue because that would silently discard
// pending conversions.
func unmarshalQueue(data []byte) ([]models.ConversionQueueItem, error) {
	var state queueState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal conversion queue: %w", err)
	}
	if state.AdConversions == nil {
		return nil, fmt.Errorf("unmarshal conversion queue: missing ad_conversions key")
	}

	items := make([]models.ConversionQueueItem, 0, len(state.AdConversions))
	for i, st := range state.AdConversions {
		secs, err := strconv.ParseInt(st.TimestampInSeconds, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unmarshal conversion queue: item %d timestamp %q: %w",
				i, st.TimestampInSeconds, err)
		}
		items = append(items, models.ConversionQueueItem{
			PlacementID:         st.UUID,
			CampaignID:          st.CampaignID,
			CreativeSetID:       st.CreativeSetID,
			CreativeInstanceID:  st.CreativeInstanceID,
			AdvertiserID:        st.AdvertiserID,
			ConversionID:        st.ConversionID,
			AdvertiserPublicKey: st.AdvertiserPublicKey,
			ConfirmAt:           time.Unix(secs, 0).UTC(),
		})
	}
	return items, nil
}
