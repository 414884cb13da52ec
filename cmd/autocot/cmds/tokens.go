package cmds

import (
	"fmt"
	"sort"

	"github.com/go-go-golems/autocot/pkg/conversation"
	"github.com/spf13/cobra"
)

func NewTokensCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens FILE",
		Short: "Estimate the token count of a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadConversation(args[0])
			if err != nil {
				return err
			}
			encoding, _ := cmd.Flags().GetString("encoding")
			count, err := state.EstimateTokens(encoding)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			roles := make([]string, 0, len(count.ByRole))
			for r := range count.ByRole {
				roles = append(roles, string(r))
			}
			sort.Strings(roles)
			for _, r := range roles {
				fmt.Fprintf(out, "%-10s %d\n", r, count.ByRole[conversation.Role(r)])
			}
			fmt.Fprintf(out, "%-10s %d\n", "total", count.Total)
			return nil
		},
	}
	cmd.Flags().String("encoding", "cl100k_base", "Tokenizer encoding")
	return cmd
}
