package bridge

import (
	"captionminer/internal/cards"
	"captionminer/internal/host"
	"captionminer/internal/overlay"
)

// Inbound message types.
const (
	msgSnapshot = "snapshot"
	msgMutation = "mutation"
	msgNavigate = "navigate"
	msgActivate = "activate"
	msgHover    = "hover"
	msgLeave    = "leave"
	msgSubmit   = "submit"
)

// Outbound message types.
const (
	msgAttach  = "attach"
	msgDetach  = "detach"
	msgRender  = "render"
	msgTooltip = "tooltip"
	msgToast   = "toast"
)

// Mutation targets.
const (
	targetCaption = "caption"
	targetPlayer  = "player"
)

// Inbound is a message sent by the page. Snapshot fields are pointers so a
// partial update leaves unspecified fields untouched.
type Inbound struct {
	Type     string      `json:"type"`
	Location *string     `json:"location,omitempty"`
	Player   *bool       `json:"player,omitempty"`
	Overlay  *bool       `json:"overlay,omitempty"`
	Caption  *string     `json:"caption,omitempty"`
	Time     *float64    `json:"time,omitempty"`
	Video    *host.Video `json:"video,omitempty"`
	Target   string      `json:"target,omitempty"`
	URL      string      `json:"url,omitempty"`
	Token    *int        `json:"token,omitempty"`
	Char     *int        `json:"char,omitempty"`
	Mode     cards.Mode  `json:"mode,omitempty"`
}

// Outbound is a command sent to the page.
type Outbound struct {
	Type    string           `json:"type"`
	Frame   *overlay.Frame   `json:"frame,omitempty"`
	Tooltip *overlay.Tooltip `json:"tooltip,omitempty"`
	Kind    host.ToastKind   `json:"kind,omitempty"`
	Message string           `json:"message,omitempty"`
}

func (m Inbound) pointer() (host.Pointer, bool) {
	p := host.Pointer{Token: -1, Char: -1, Mode: m.Mode}
	if m.Token != nil {
		p.Token = *m.Token
	}
	if m.Char != nil && *m.Char >= 0 {
		p.Char = *m.Char
	}
	switch m.Type {
	case msgActivate:
		p.Action = host.Activate
	case msgHover:
		p.Action = host.Hover
	case msgLeave:
		p.Action = host.Leave
	case msgSubmit:
		p.Action = host.Submit
	default:
		return host.Pointer{}, false
	}
	if (p.Action == host.Activate || p.Action == host.Hover) && p.Token < 0 {
		return host.Pointer{}, false
	}
	return p, true
}
