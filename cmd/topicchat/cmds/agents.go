package cmds

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// NewAgentsCommand prints the agent catalog the server would use.
func NewAgentsCommand(v *viper.Viper) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List the configured agents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := LoadCatalog(v)
			if err != nil {
				return err
			}
			list := catalog.List()
			w := cmd.OutOrStdout()
			switch output {
			case "yaml":
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(map[string]any{"agents": list}); err != nil {
					return errors.Wrap(err, "encode agents")
				}
				return enc.Close()
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			default:
				return errors.Errorf("unknown output format %q", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format (yaml, json)")
	return cmd
}
