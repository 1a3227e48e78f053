// Package extract turns bot messages into heart counts.
package extract

import (
	"strings"

	"heartwatch/internal/model"
)

var heartGlyphs = []string{"❤", "♥", "💖", "💗", "💓", "💕", "💞", "💘", "💝", "🧡", "💛", "💚", "💙", "💜", "🖤", "🤍", "🤎", "🩷", "🩵", "🩶"}

// Values returns every parseable count found on the message's elements, in
// row order.
func Values(msg model.Message) []int64 {
	out := make([]int64, 0)
	for _, row := range msg.Rows {
		for _, el := range row.Elements {
			if !isCandidate(el) {
				continue
			}
			if v, ok := ParseLabel(el.Label); ok {
				out = append(out, v)
			}
		}
	}
	return out
}

// Representative returns the largest value, or false when there are none.
func Representative(values []int64) (int64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	best := values[0]
	for _, v := range values[1:] {
		if v > best {
			best = v
		}
	}
	return best, true
}

func isCandidate(el model.Element) bool {
	if HasHeartMarker(el) {
		return true
	}
	return strings.ContainsAny(el.Label, "0123456789")
}

// HasHeartMarker reports whether the element is explicitly tagged as a heart
// counter, either through its emoji or a heart glyph inside the label.
func HasHeartMarker(el model.Element) bool {
	if el.Emoji != nil {
		if isHeart(el.Emoji.Name) {
			return true
		}
	}
	return containsHeartGlyph(el.Label)
}

func isHeart(name string) bool {
	if name == "" {
		return false
	}
	if strings.Contains(strings.ToLower(name), "heart") {
		return true
	}
	return containsHeartGlyph(name)
}

func containsHeartGlyph(s string) bool {
	for _, g := range heartGlyphs {
		if strings.Contains(s, g) {
			return true
		}
	}
	return false
}
