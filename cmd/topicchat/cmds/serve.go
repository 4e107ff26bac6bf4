package cmds

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/topicchat/pkg/webchat"
)

func NewServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the topic chat websocket and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := RouterSettings(v)
			if err != nil {
				return err
			}
			catalog, err := LoadCatalog(v)
			if err != nil {
				return err
			}
			log.Info().
				Int("agents", len(catalog.List())).
				Str("fragment_mode", settings.FragmentMode).
				Bool("redis", settings.Redis.Enabled).
				Msg("configured topicchat")

			srv, err := webchat.NewServer(cmd.Context(), settings, catalog)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	AddServeFlags(cmd.Flags())
	return cmd
}
