package selection

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// Token is one segmented unit of the current caption.
type Token struct {
	Index int
	Text  string
}

// Runes returns the token's characters.
func (t Token) Runes() []rune {
	return []rune(t.Text)
}

// Len is the token length in characters.
func (t Token) Len() int {
	return utf8.RuneCountInString(t.Text)
}

// Tokens indexes segmented texts.
func Tokens(texts []string) []Token {
	out := make([]Token, 0, len(texts))
	for i, text := range texts {
		out = append(out, Token{Index: i, Text: text})
	}
	return out
}

// State is the display state of a single token.
type State int

const (
	Unselected State = iota
	Selected
	ExpandedUnselected
	ExpandedPartial
)

func (s State) String() string {
	switch s {
	case Selected:
		return "selected"
	case ExpandedUnselected:
		return "expanded"
	case ExpandedPartial:
		return "expanded_partial"
	default:
		return "unselected"
	}
}

// Machine holds selection state for the current caption. It is not safe for
// concurrent use; the engine loop owns it.
type Machine struct {
	tokens   []Token
	selected map[int]struct{}
	chars    map[int]map[int]struct{}
	expanded map[int]struct{}
}

// NewMachine returns an empty machine.
func NewMachine() *Machine {
	m := &Machine{}
	m.Reset(nil)
	return m
}

// Reset replaces the token sequence and drops all selection and expansion.
func (m *Machine) Reset(tokens []Token) {
	m.tokens = slices.Clone(tokens)
	m.selected = make(map[int]struct{})
	m.chars = make(map[int]map[int]struct{})
	m.expanded = make(map[int]struct{})
}

// Clear drops selection and expansion but keeps the tokens.
func (m *Machine) Clear() {
	m.Reset(m.tokens)
}

// Tokens returns a copy of the current tokens.
func (m *Machine) Tokens() []Token {
	return slices.Clone(m.tokens)
}

// Token returns the token at index.
func (m *Machine) Token(index int) (Token, bool) {
	if index < 0 || index >= len(m.tokens) {
		return Token{}, false
	}
	return m.tokens[index], true
}

// ToggleToken flips whole-token selection. It reports whether anything
// changed.
func (m *Machine) ToggleToken(index int) bool {
	if _, ok := m.Token(index); !ok {
		return false
	}
	if _, ok := m.selected[index]; ok {
		delete(m.selected, index)
	} else {
		m.selected[index] = struct{}{}
	}
	return true
}

// ToggleExpand flips character display for tokens longer than one
// character. Entering expansion selects nothing; collapsing discards the
// token's character selection. Single-character tokens are unchanged.
func (m *Machine) ToggleExpand(index int) bool {
	token, ok := m.Token(index)
	if !ok || token.Len() <= 1 {
		return false
	}
	if _, ok := m.expanded[index]; ok {
		delete(m.expanded, index)
		delete(m.chars, index)
		return true
	}
	m.expanded[index] = struct{}{}
	return true
}

// ToggleChar flips one character of an expanded token.
func (m *Machine) ToggleChar(index, char int) bool {
	token, ok := m.Token(index)
	if !ok || !m.IsExpanded(index) || char < 0 || char >= token.Len() {
		return false
	}
	set := m.chars[index]
	if _, ok := set[char]; ok {
		delete(set, char)
		if len(set) == 0 {
			delete(m.chars, index)
		}
		return true
	}
	if set == nil {
		set = make(map[int]struct{})
		m.chars[index] = set
	}
	set[char] = struct{}{}
	return true
}

// IsSelected reports derived selection: a whole-token mark or at least one
// marked character.
func (m *Machine) IsSelected(index int) bool {
	if _, ok := m.selected[index]; ok {
		return true
	}
	return len(m.chars[index]) > 0
}

// IsExpanded reports whether the token shows its characters.
func (m *Machine) IsExpanded(index int) bool {
	_, ok := m.expanded[index]
	return ok
}

// CharSelected reports whether a character of an expanded token is marked.
func (m *Machine) CharSelected(index, char int) bool {
	_, ok := m.chars[index][char]
	return ok
}

// State derives the display state of a token.
func (m *Machine) State(index int) State {
	if m.IsExpanded(index) {
		if len(m.chars[index]) > 0 {
			return ExpandedPartial
		}
		return ExpandedUnselected
	}
	if m.IsSelected(index) {
		return Selected
	}
	return Unselected
}

// SelectedIndices returns derived-selected token indices in ascending order.
func (m *Machine) SelectedIndices() []int {
	out := make([]int, 0, len(m.selected)+len(m.chars))
	for _, token := range m.tokens {
		if m.IsSelected(token.Index) {
			out = append(out, token.Index)
		}
	}
	return out
}

// SelectedCount is the number of derived-selected tokens.
func (m *Machine) SelectedCount() int {
	return len(m.SelectedIndices())
}

// HasSelection reports whether any token is derived-selected.
func (m *Machine) HasSelection() bool {
	for _, token := range m.tokens {
		if m.IsSelected(token.Index) {
			return true
		}
	}
	return false
}

// TargetText assembles the selection: selected tokens in ascending order,
// each contributing its marked characters in order when it has any and its
// full text otherwise. No separator is inserted.
func (m *Machine) TargetText() string {
	var b strings.Builder
	for _, index := range m.SelectedIndices() {
		token := m.tokens[index]
		set := m.chars[index]
		if len(set) == 0 {
			b.WriteString(token.Text)
			continue
		}
		for i, r := range token.Runes() {
			if _, ok := set[i]; ok {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
