package ingest

import (
	"github.com/bwmarrin/discordgo"

	"heartwatch/internal/model"
)

// FromDiscord maps a discordgo message onto the extractor's row/element view.
// Action rows become rows; buttons become elements.
func FromDiscord(m *discordgo.Message) model.Message {
	if m == nil {
		return model.Message{}
	}
	msg := model.Message{ID: m.ID, ChannelID: m.ChannelID, GuildID: m.GuildID}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
	}
	for _, c := range m.Components {
		switch v := c.(type) {
		case *discordgo.ActionsRow:
			if v != nil {
				msg.Rows = append(msg.Rows, rowFromComponents(v.Components))
			}
		case discordgo.ActionsRow:
			msg.Rows = append(msg.Rows, rowFromComponents(v.Components))
		default:
			if el, ok := elementFromComponent(c); ok {
				msg.Rows = append(msg.Rows, model.Row{Elements: []model.Element{el}})
			}
		}
	}
	return msg
}

func rowFromComponents(components []discordgo.MessageComponent) model.Row {
	row := model.Row{Elements: make([]model.Element, 0, len(components))}
	for _, c := range components {
		if el, ok := elementFromComponent(c); ok {
			row.Elements = append(row.Elements, el)
		}
	}
	return row
}

func elementFromComponent(c discordgo.MessageComponent) (model.Element, bool) {
	switch v := c.(type) {
	case *discordgo.Button:
		if v == nil {
			return model.Element{}, false
		}
		return elementFromButton(*v), true
	case discordgo.Button:
		return elementFromButton(v), true
	}
	return model.Element{}, false
}

func elementFromButton(b discordgo.Button) model.Element {
	el := model.Element{Label: b.Label}
	if b.Emoji != nil && (b.Emoji.Name != "" || b.Emoji.ID != "") {
		el.Emoji = &model.Emoji{Name: b.Emoji.Name, ID: b.Emoji.ID}
	}
	return el
}
