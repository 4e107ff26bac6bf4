package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/topicchat/cmd/topicchat/cmds"
	"github.com/go-go-golems/topicchat/pkg/logging"
)

func newRootCommand() *cobra.Command {
	v := viper.New()
	rootCmd := &cobra.Command{
		Use:           "topicchat",
		Short:         "topicchat serves multi-topic agent chat sessions over websockets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// flags are only known once cobra has picked the sub-command
			if err := cmds.InitConfig(v, cmd); err != nil {
				return err
			}
			return logging.Init(cmds.LoggingSettings(v), os.Stderr)
		},
	}
	cmds.AddRootFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(cmds.NewServeCommand(v), cmds.NewAgentsCommand(v))
	return rootCmd
}

func main() {
	err := newRootCommand().ExecuteContext(context.Background())
	cobra.CheckErr(err)
}
