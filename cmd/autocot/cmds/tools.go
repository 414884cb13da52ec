package cmds

import (
	"fmt"

	"github.com/go-go-golems/autocot/pkg/toolbox"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewToolsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the built-in tools and the system prompt generated for them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := toolbox.NewRegistry()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			showPrompt, _ := cmd.Flags().GetBool("prompt")
			if !showPrompt {
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(reg.List()); err != nil {
					return err
				}
				return enc.Close()
			}

			s, err := LoadSettings(cmd)
			if err != nil {
				return err
			}
			character, _ := cmd.Flags().GetString("character")
			p, err := SystemPrompt(s, character, reg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, p)
			return err
		},
	}
	cmd.Flags().Bool("prompt", false, "Print the system prompt instead of the tool list")
	return cmd
}
