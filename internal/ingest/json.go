package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"heartwatch/internal/model"
)

// DecodeMessages reads one message object or an array of them. Both the
// native shape (rows/elements) and Discord's component shape
// (components/components) are understood. Anything structurally unexpected
// below the top level is treated as empty.
func DecodeMessages(data []byte) ([]model.Message, error) {
	trim := bytes.TrimSpace(data)
	if len(trim) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(trim))
	dec.UseNumber()
	if trim[0] == '[' {
		var list []any
		if err := dec.Decode(&list); err != nil {
			return nil, err
		}
		out := make([]model.Message, 0, len(list))
		for _, item := range list {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, MessageFromMap(obj))
			}
		}
		return out, nil
	}
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return []model.Message{MessageFromMap(obj)}, nil
}

func MessageFromMap(obj map[string]any) model.Message {
	msg := model.Message{
		ID:        str(obj["id"]),
		ChannelID: str(obj["channel_id"]),
		GuildID:   str(obj["guild_id"]),
		AuthorID:  str(obj["author_id"]),
	}
	if msg.AuthorID == "" {
		if author, ok := obj["author"].(map[string]any); ok {
			msg.AuthorID = str(author["id"])
		}
	}
	rows, ok := obj["rows"].([]any)
	if !ok {
		rows, _ = obj["components"].([]any)
	}
	for _, raw := range rows {
		rowObj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		msg.Rows = append(msg.Rows, rowFromMap(rowObj))
	}
	return msg
}

func rowFromMap(obj map[string]any) model.Row {
	items, ok := obj["elements"].([]any)
	if !ok {
		items, ok = obj["components"].([]any)
	}
	if !ok {
		// a bare element outside a row
		if _, hasLabel := obj["label"]; hasLabel {
			return model.Row{Elements: []model.Element{elementFromMap(obj)}}
		}
		return model.Row{}
	}
	row := model.Row{Elements: make([]model.Element, 0, len(items))}
	for _, raw := range items {
		elObj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		row.Elements = append(row.Elements, elementFromMap(elObj))
	}
	return row
}

func elementFromMap(obj map[string]any) model.Element {
	el := model.Element{Label: str(obj["label"])}
	switch e := obj["emoji"].(type) {
	case map[string]any:
		el.Emoji = &model.Emoji{Name: str(e["name"]), ID: str(e["id"])}
	case string:
		if e != "" {
			el.Emoji = &model.Emoji{Name: e}
		}
	}
	return el
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool, float64:
		return fmt.Sprint(t)
	}
	return ""
}
