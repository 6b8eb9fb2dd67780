// Package ui renders the interactive room view: member list with live
// connection states, avatar positions and the shared canvas summary.
package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MentalFish/huddle/internal/peer"
	"github.com/MentalFish/huddle/internal/protocol"
	"github.com/MentalFish/huddle/internal/session"
)

const avatarStep = 10

type tickMsg time.Time

type sessionEndedMsg struct{}

// RoomModel is the bubbletea model for an active room.
type RoomModel struct {
	session *session.Session
	roomID  string
	name    string

	spinner spinner.Model

	// Local avatar position, moved with the arrow keys.
	x, y float64

	// prevX/prevY anchor the next stroke when drawing.
	prevX, prevY float64

	quitting bool
	ended    bool
}

// NewRoomModel builds the room view over a joined session.
func NewRoomModel(s *session.Session, roomID, name string) RoomModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SpinnerStyle

	return RoomModel{session: s, roomID: roomID, name: name, spinner: sp}
}

func (m RoomModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick(), m.waitForEnd())
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m RoomModel) waitForEnd() tea.Cmd {
	done := m.session.Done()
	return func() tea.Msg {
		<-done
		return sessionEndedMsg{}
	}
}

func (m RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		if m.quitting {
			return m, nil
		}
		return m, tick()

	case sessionEndedMsg:
		m.ended = true
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m RoomModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		m.session.Leave()
		return m, tea.Quit

	case "m":
		if m.session.MediaAcquired() {
			m.session.StopMedia()
		} else {
			m.session.StartMedia()
		}

	case "v":
		m.session.ToggleVideo()

	case "a":
		m.session.ToggleAudio()

	case "s":
		if m.session.ScreenSharing() {
			m.session.StopScreenShare()
		} else {
			m.session.StartScreenShare()
		}

	case "d":
		m.session.Draw(
			protocol.Point{X: m.prevX, Y: m.prevY},
			protocol.Point{X: m.x, Y: m.y},
		)
		m.prevX, m.prevY = m.x, m.y

	case "c":
		m.session.ClearCanvas()

	case "up":
		m.moveAvatar(0, -avatarStep)
	case "down":
		m.moveAvatar(0, avatarStep)
	case "left":
		m.moveAvatar(-avatarStep, 0)
	case "right":
		m.moveAvatar(avatarStep, 0)
	}
	return m, nil
}

func (m *RoomModel) moveAvatar(dx, dy float64) {
	m.x += dx
	m.y += dy
	if m.x < 0 {
		m.x = 0
	}
	if m.y < 0 {
		m.y = 0
	}
	m.session.MoveAvatar(m.x, m.y)
}

func (m RoomModel) View() string {
	if m.ended {
		return FooterStyle.Render("Connection closed.") + "\n"
	}
	if m.quitting {
		return ""
	}

	selfID := m.session.SelfID()
	if selfID == "" {
		return fmt.Sprintf("\n %s Joining room %s...\n", m.spinner.View(), BoldStyle.Render(m.roomID))
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("%s Room %s", IconRoom, m.roomID)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s %s\n\n", IconPeer, BoldStyle.Render(m.name), MutedStyle.Render("("+selfID+")")))

	b.WriteString(m.mediaLine())
	b.WriteString(m.peerLines())
	b.WriteString(m.collabLines())

	b.WriteString(FooterStyle.Render("m media · v video · a audio · s screen · arrows move · d draw · c clear · q leave"))
	b.WriteString("\n")
	return b.String()
}

func (m RoomModel) mediaLine() string {
	if !m.session.MediaAcquired() {
		return WarningStyle.Render(IconWarning+" media off, press m to start") + "\n\n"
	}
	video, audio := m.session.MediaEnabled()
	parts := []string{
		toggleLabel(IconVideo, "video", video),
		toggleLabel(IconAudio, "audio", audio),
	}
	if m.session.ScreenSharing() {
		parts = append(parts, SuccessStyle.Render(IconScreen+" sharing"))
	}
	return strings.Join(parts, "  ") + "\n\n"
}

func toggleLabel(icon, name string, on bool) string {
	if on {
		return SuccessStyle.Render(fmt.Sprintf("%s %s on", icon, name))
	}
	return MutedStyle.Render(fmt.Sprintf("%s %s off", icon, name))
}

func (m RoomModel) peerLines() string {
	states := m.session.PeerStates()
	if len(states) == 0 {
		return MutedStyle.Render(IconWaiting+" Waiting for others to join...") + "\n\n"
	}

	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString(BoldStyle.Render(fmt.Sprintf("Participants (%d)", len(ids))))
	b.WriteString("\n")
	for _, id := range ids {
		state := states[id]
		line := fmt.Sprintf("  %s %s  %s", IconPeer, id, stateStyle(state).Render(state.String()))
		if pos, ok := m.session.Avatars().Get(id); ok {
			line += MutedStyle.Render(fmt.Sprintf("  @ %.0f,%.0f", pos.X, pos.Y))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func (m RoomModel) collabLines() string {
	return fmt.Sprintf("%s %.0f,%.0f   %s %d strokes\n\n",
		IconAvatar, m.x, m.y,
		IconCanvas, m.session.Canvas().Len(),
	)
}

func stateStyle(s peer.State) lipgloss.Style {
	switch s {
	case peer.StateConnected:
		return StateGoodStyle
	case peer.StateDisconnected, peer.StateClosed:
		return StateBadStyle
	default:
		return StateBusyStyle
	}
}
