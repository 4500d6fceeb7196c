// Package types defines the records shared by the bridge components.
package types

// EventRecord is the projection of one scheduling webhook delivery.
// Every field is nullable; absent input stays nil and is stored as NULL.
type EventRecord struct {
	UserID        *string `json:"user_id"`
	EventName     *string `json:"event_name"`
	InviteeName   *string `json:"invitee_name"`
	InviteeEmail  *string `json:"invitee_email"`
	StartTime     *string `json:"start_time"`
	EndTime       *string `json:"end_time"`
	CancelURL     *string `json:"cancel_url"`
	RescheduleURL *string `json:"reschedule_url"`
}

// UserSettings is the per-user messaging row.
type UserSettings struct {
	Name          string  `json:"name"`
	ChannelID     string  `json:"channel_id"`
	MessageFormat *string `json:"message_format"`
}

// SettingsUpdate changes a settings row. Nil fields keep their stored
// value, or stay NULL on a new row.
type SettingsUpdate struct {
	ChannelID     *string `json:"channel_id"`
	MessageFormat *string `json:"message_format"`
}

// EmailReply is an inbound cold-email reply notification.
type EmailReply struct {
	CampaignName     string `json:"campaign_name"`
	LeadEmail        string `json:"lead_email"`
	ReplyTextSnippet string `json:"reply_text_snippet"`
	UniboxURL        string `json:"unibox_url"`
}

// Channel is a messaging destination visible to a user.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChatPart is one segment of a chat message as sent by the UI.
type ChatPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ChatMessage is a role-tagged message from the chat UI.
type ChatMessage struct {
	Role  string     `json:"role"`
	Parts []ChatPart `json:"parts"`
}

// Turn is a flattened role-tagged text turn sent to the LLM.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ptr returns a pointer to s.
func Ptr(s string) *string {
	return &s
}

// TurnsFromChat flattens chat messages into text turns. Text parts are
// concatenated; other parts are ignored and empty turns are dropped.
func TurnsFromChat(msgs []ChatMessage) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		var text string
		for _, p := range m.Parts {
			if p.Type == "text" {
				text += p.Text
			}
		}
		if text == "" || m.Role == "" {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Content: text})
	}
	return turns
}
