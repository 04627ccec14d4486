// Package overlay projects engine state into render frames for the host
// surface. Projection is pure: the same selection state always yields the
// same frame, so rendering can be tested without a page.
package overlay

import (
	"github.com/mattn/go-runewidth"

	"captionminer/internal/selection"
)

// PreviewWidth is the display-cell budget for the selection preview line.
const PreviewWidth = 24

// Char is one character of an expanded token.
type Char struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
}

// Unit is one rendered token.
type Unit struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	State    string `json:"state"`
	Selected bool   `json:"selected"`
	Expanded bool   `json:"expanded"`
	Width    int    `json:"width"`
	Chars    []Char `json:"chars,omitempty"`
}

// Frame is a full overlay render. An empty Units slice clears the overlay.
type Frame struct {
	Caption       string `json:"caption"`
	Units         []Unit `json:"units"`
	SelectedCount int    `json:"selectedCount"`
	Target        string `json:"target,omitempty"`
	Preview       string `json:"preview,omitempty"`
}

// Empty reports whether the frame renders nothing.
func (f Frame) Empty() bool {
	return len(f.Units) == 0
}

// Tooltip is the hover popup state.
type Tooltip struct {
	Visible    bool   `json:"visible"`
	Text       string `json:"text,omitempty"`
	Phonetic   string `json:"phonetic,omitempty"`
	Definition string `json:"definition,omitempty"`
	Pending    bool   `json:"pending,omitempty"`
}

// Hidden is the tooltip state after the pointer leaves.
var Hidden = Tooltip{}

// Project renders m for caption.
func Project(caption string, m *selection.Machine) Frame {
	frame := Frame{Caption: caption}
	if m == nil {
		return frame
	}
	tokens := m.Tokens()
	frame.Units = make([]Unit, 0, len(tokens))
	for _, token := range tokens {
		unit := Unit{
			Index:    token.Index,
			Text:     token.Text,
			State:    m.State(token.Index).String(),
			Selected: m.IsSelected(token.Index),
			Expanded: m.IsExpanded(token.Index),
			Width:    runewidth.StringWidth(token.Text),
		}
		if unit.Expanded {
			for i, r := range token.Runes() {
				unit.Chars = append(unit.Chars, Char{
					Index:    i,
					Text:     string(r),
					Selected: m.CharSelected(token.Index, i),
				})
			}
		}
		if unit.Selected {
			frame.SelectedCount++
		}
		frame.Units = append(frame.Units, unit)
	}
	frame.Target = m.TargetText()
	frame.Preview = Preview(frame.Target)
	return frame
}

// Preview truncates text to PreviewWidth display cells.
func Preview(text string) string {
	if text == "" {
		return ""
	}
	return runewidth.Truncate(text, PreviewWidth, "…")
}
