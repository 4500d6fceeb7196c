package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bturcanu/crmbridge/pkg/broker"
	"github.com/bturcanu/crmbridge/pkg/types"
)

const (
	// ChannelsVersion pins the list-channels tool schema.
	ChannelsVersion = "20251126_02"

	toolListChannels = "SLACK_LIST_ALL_CHANNELS"
	channelTypes     = "public_channel,private_channel,im,mpim"
	channelPageSize  = 100
)

// Channels lists the conversations a user's linked workspace can post to.
type Channels struct {
	broker executor
}

func NewChannels(b executor) *Channels {
	return &Channels{broker: b}
}

type channelList struct {
	Channels []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		User string `json:"user"`
	} `json:"channels"`
}

// List returns the first page of channels. Direct messages have no name and
// are labelled with the peer's user id.
func (c *Channels) List(ctx context.Context, userID string) ([]types.Channel, error) {
	resp, err := c.broker.Execute(ctx, broker.ExecuteRequest{
		Slug:    toolListChannels,
		UserID:  userID,
		Version: ChannelsVersion,
		Arguments: map[string]any{
			"limit": channelPageSize,
			"types": channelTypes,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("notify.List: %w", err)
	}
	var list channelList
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &list); err != nil {
			return nil, fmt.Errorf("notify.List decode: %w", err)
		}
	}

	out := make([]types.Channel, 0, len(list.Channels))
	for _, ch := range list.Channels {
		name := ch.Name
		if name == "" {
			name = ch.User
		}
		if name == "" {
			name = ch.ID
		}
		out = append(out, types.Channel{ID: ch.ID, Name: name})
	}
	return out, nil
}
