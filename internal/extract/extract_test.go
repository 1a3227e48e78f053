package extract

import (
	"testing"

	"heartwatch/internal/model"
)

func TestParseLabel(t *testing.T) {
	cases := []struct {
		label string
		want  int64
		ok    bool
	}{
		{"150", 150, true},
		{"1.5k", 1500, true},
		{"1.5K", 1500, true},
		{"2m", 2000000, true},
		{"2M", 2000000, true},
		{"❤️42", 42, true},
		{" ❤️ 1.25k ", 1250, true},
		{"0", 0, true},
		{".5k", 500, true},
		{"", 0, false},
		{"abc", 0, false},
		{"k", 0, false},
		{"1.2.3", 0, false},
		{"1.2.3k", 0, false},
		{"99999999999999999999", 0, false},
		{"9999999999999999m", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseLabel(tc.label)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseLabel(%q) = %d, %v; want %d, %v", tc.label, got, ok, tc.want, tc.ok)
		}
	}
}

func TestValuesPicksHeartAndDigitElements(t *testing.T) {
	msg := model.Message{
		ID: "m1",
		Rows: []model.Row{
			{Elements: []model.Element{
				{Label: "12", Emoji: &model.Emoji{Name: "❤️"}},
				{Label: "Join"},
				{Label: "1.1k"},
			}},
			{Elements: []model.Element{
				{Label: "oops", Emoji: &model.Emoji{Name: "pink_heart", ID: "123"}},
				{Label: "300"},
			}},
		},
	}
	got := Values(msg)
	want := []int64{12, 1100, 300}
	if len(got) != len(want) {
		t.Fatalf("values: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("values: got %v want %v", got, want)
		}
	}
	rep, ok := Representative(got)
	if !ok || rep != 1100 {
		t.Fatalf("representative: %d %v", rep, ok)
	}
}

func TestValuesEmptyMessage(t *testing.T) {
	if got := Values(model.Message{}); len(got) != 0 {
		t.Fatalf("expected no values, got %v", got)
	}
	msg := model.Message{Rows: []model.Row{{}, {Elements: []model.Element{{}}}}}
	if got := Values(msg); len(got) != 0 {
		t.Fatalf("expected no values, got %v", got)
	}
	if _, ok := Representative(nil); ok {
		t.Fatalf("expected no representative for empty input")
	}
}

func TestHasHeartMarker(t *testing.T) {
	if !HasHeartMarker(model.Element{Label: "♥ 5"}) {
		t.Fatalf("heart glyph in label should mark element")
	}
	if HasHeartMarker(model.Element{Label: "5", Emoji: &model.Emoji{Name: "🔥"}}) {
		t.Fatalf("fire emoji is not a heart")
	}
}
