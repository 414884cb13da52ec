package cmds

import (
	"fmt"

	"github.com/go-go-golems/autocot/pkg/backend/gemini"
	"github.com/go-go-golems/autocot/pkg/settings"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewModelsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the Gemini chat models available to the configured key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := LoadSettings(cmd)
			if err != nil {
				return err
			}
			if s.Chat.ApiType != settings.ApiTypeGemini {
				return errors.Errorf("listing models is only supported for gemini, not %s", s.Chat.ApiType)
			}
			filter, _ := cmd.Flags().GetString("filter")
			ids, err := gemini.ListModels(cmd.Context(), s.Chat.APIKey, filter, gemini.ClientOptions(s.Chat, s.Client)...)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().String("filter", "", "Glob the model names must match, for example 'gemini-2.*'")
	return cmd
}
