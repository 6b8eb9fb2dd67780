package cli

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/MentalFish/huddle/internal/config"
	"github.com/MentalFish/huddle/internal/media"
	"github.com/MentalFish/huddle/internal/peer"
	"github.com/MentalFish/huddle/internal/session"
	"github.com/MentalFish/huddle/internal/signaling"
	"github.com/MentalFish/huddle/internal/ui"
)

var (
	flagJoinDomain   string
	flagJoinName     string
	flagJoinToken    string
	flagJoinSTUN     string
	flagJoinTURN     string
	flagJoinTURNUser string
	flagJoinTURNPass string
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id|url>",
	Aliases: []string{"j"},
	Short:   "Join a video room",
	Long: `Join a multi-party video room. A direct WebRTC connection is
negotiated with every participant already in the room and with anyone who
joins later.

Examples:
  huddle join team-standup
  huddle join https://huddle.example.com/r/team-standup
  huddle join team-standup --name Alice --token <session-token>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		return joinRoom(roomID)
	},
}

func joinRoom(roomID string) error {
	cfg, err := config.LoadClient(config.ClientOptions{
		Domain:       flagJoinDomain,
		DisplayName:  flagJoinName,
		SessionToken: flagJoinToken,
		STUNServer:   flagJoinSTUN,
		TURNServer:   flagJoinTURN,
		TURNUser:     flagJoinTURNUser,
		TURNPass:     flagJoinTURNPass,
	})
	if err != nil {
		return err
	}

	log := slog.Default()
	transport := signaling.NewClient(cfg.RoomURL(roomID), cfg.SessionToken)
	factory := peer.NewPionFactory(cfg, log)

	s := session.New(transport, factory, media.NewPionDevice(), log)
	if err := s.Join(); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}
	defer s.Leave()

	name := cfg.DisplayName
	if name == "" {
		name = "guest"
	}

	program := tea.NewProgram(ui.NewRoomModel(s, roomID, name))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("room view failed: %w", err)
	}
	return nil
}

// parseRoomInput accepts a bare room id or a room URL and returns the room
// id.
func parseRoomInput(input string) (string, error) {
	if !strings.Contains(input, "://") {
		if input == "" {
			return "", fmt.Errorf("empty room id")
		}
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid room URL: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	roomID := parts[len(parts)-1]
	if roomID == "" {
		return "", fmt.Errorf("no room id in URL %q", input)
	}
	return roomID, nil
}

func init() {
	joinCmd.Flags().StringVarP(&flagJoinDomain, "domain", "d", "", "Signaling server domain")
	joinCmd.Flags().StringVarP(&flagJoinName, "name", "n", "", "Display name shown in your room view")
	joinCmd.Flags().StringVarP(&flagJoinToken, "token", "t", "", "Session token for authenticated rooms")
	joinCmd.Flags().StringVar(&flagJoinSTUN, "stun", "", "STUN server URL")
	joinCmd.Flags().StringVar(&flagJoinTURN, "turn", "", "TURN server host")
	joinCmd.Flags().StringVar(&flagJoinTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagJoinTURNPass, "turn-pass", "", "TURN password")

	rootCmd.AddCommand(joinCmd)
}
