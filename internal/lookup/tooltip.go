package lookup

import "captionminer/internal/overlay"

// Tooltip tracks the hover popup. It is owned by the engine loop.
//
// Hover shows the text immediately and hands back a ticket for the lookup
// result. Results are applied in arrival order (the last write wins, and
// in-flight lookups are never cancelled), except that a result whose hover
// preceded the most recent Leave is dropped.
type Tooltip struct {
	view    overlay.Tooltip
	session uint64
}

// Ticket identifies the hover a lookup belongs to.
type Ticket struct {
	Text    string
	session uint64
}

// Hover shows text with a pending lookup.
func (t *Tooltip) Hover(text string) (overlay.Tooltip, Ticket) {
	t.view = overlay.Tooltip{Visible: true, Text: text, Pending: true}
	return t.view, Ticket{Text: text, session: t.session}
}

// Apply writes a lookup result. It reports false when the result arrived
// after the tooltip was dismissed.
func (t *Tooltip) Apply(ticket Ticket, result Result) (overlay.Tooltip, bool) {
	if !t.view.Visible || ticket.session != t.session {
		return t.view, false
	}
	t.view = overlay.Tooltip{
		Visible:    true,
		Text:       ticket.Text,
		Phonetic:   result.Phonetic,
		Definition: result.Definition,
	}
	return t.view, true
}

// Leave hides the tooltip and invalidates outstanding tickets.
func (t *Tooltip) Leave() overlay.Tooltip {
	t.session++
	t.view = overlay.Hidden
	return t.view
}

// View returns the current tooltip state.
func (t *Tooltip) View() overlay.Tooltip {
	return t.view
}
