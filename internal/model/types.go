package model

import "time"

type Source string

const (
	SourceGateway Source = "gateway"
	SourcePoll    Source = "poll"
	SourceREST    Source = "rest"
	SourceKafka   Source = "kafka"
)

type Emoji struct {
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
}

type Element struct {
	Label string `json:"label,omitempty"`
	Emoji *Emoji `json:"emoji,omitempty"`
}

type Row struct {
	Elements []Element `json:"elements,omitempty"`
}

type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id,omitempty"`
	GuildID   string `json:"guild_id,omitempty"`
	AuthorID  string `json:"author_id,omitempty"`
	Rows      []Row  `json:"rows,omitempty"`
}

type Observation struct {
	MessageID string    `json:"message_id"`
	ChannelID string    `json:"channel_id,omitempty"`
	GuildID   string    `json:"guild_id,omitempty"`
	Value     int64     `json:"value"`
	Source    Source    `json:"source"`
	SeenAt    time.Time `json:"seen_at"`
}

type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
	OutcomeDropped   Outcome = "dropped"
)

type Alert struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	MessageID string    `json:"message_id"`
	ChannelID string    `json:"channel_id,omitempty"`
	GuildID   string    `json:"guild_id,omitempty"`
	Tier      string    `json:"tier"`
	Audience  string    `json:"audience"`
	Priority  string    `json:"priority,omitempty"`
	Value     int64     `json:"value"`
	Source    Source    `json:"source"`
	Outcome   Outcome   `json:"outcome"`
	Error     string    `json:"error,omitempty"`
}

// Link returns the Discord jump URL for the alerted message, or "" when the
// channel is unknown.
func (a Alert) Link() string {
	if a.ChannelID == "" || a.MessageID == "" {
		return ""
	}
	guild := a.GuildID
	if guild == "" {
		guild = "@me"
	}
	return "https://discord.com/channels/" + guild + "/" + a.ChannelID + "/" + a.MessageID
}
