package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MentalFish/huddle/internal/roomname"
	"github.com/MentalFish/huddle/internal/ui"
)

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c"},
	Short:   "Create a room with a memorable name and join it",
	Long: `Create a new room under a generated three-word name and join it.
Rooms exist while someone is in them; share the name with the people you
want to huddle with.

Examples:
  huddle create
  huddle create --name Alice`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := roomname.Generate()
		fmt.Printf("%s Room %s\n", ui.IconRoom, ui.BoldStyle.Render(roomID))
		return joinRoom(roomID)
	},
}

func init() {
	createCmd.Flags().StringVarP(&flagJoinName, "name", "n", "", "Display name shown in your room view")
	createCmd.Flags().StringVarP(&flagJoinDomain, "domain", "d", "", "Signaling server domain")
	createCmd.Flags().StringVarP(&flagJoinToken, "token", "t", "", "Session token for authenticated rooms")

	rootCmd.AddCommand(createCmd)
}
