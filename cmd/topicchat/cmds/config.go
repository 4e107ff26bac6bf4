package cmds

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-go-golems/topicchat/pkg/agents"
	"github.com/go-go-golems/topicchat/pkg/logging"
	"github.com/go-go-golems/topicchat/pkg/webchat"
)

const envPrefix = "TOPICCHAT"

// AddRootFlags registers flags shared by every sub-command.
func AddRootFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file")
	fs.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	fs.String("log-format", "text", "Log format (text, json)")
	fs.Bool("with-caller", false, "Log caller file and line")
	fs.String("agents-file", "", "YAML file with an `agents:` list replacing the built-in catalog")
}

func AddServeFlags(fs *pflag.FlagSet) {
	d := webchat.DefaultRouterSettings()
	fs.String("addr", d.Addr, "HTTP listen address")
	fs.Duration("task-delay", d.TaskDelay, "Simulated latency of background tasks")
	fs.Duration("task-timeout", d.TaskTimeout, "Upper bound on a background task's lifetime")
	fs.Float64("pacing", d.Pacing, "Scale factor for the inter-fragment delay (0 disables it)")
	fs.String("fragment-mode", d.FragmentMode, "How replies are split into chunks (char, word, token)")
	fs.Int("send-buffer", d.SendBuffer, "Queued outbound frames per connection before it is dropped")
	fs.Duration("write-timeout", d.WriteTimeout, "Websocket write deadline")
	fs.String("transcript-db", "", "SQLite file archiving completed exchanges (empty keeps them in memory)")
	fs.Bool("redis-enabled", d.Redis.Enabled, "Carry notifications over Redis Streams instead of in-process")
	fs.String("redis-addr", d.Redis.Addr, "Redis address")
	fs.String("redis-group", d.Redis.Group, "Redis consumer group")
	fs.String("redis-consumer", d.Redis.Consumer, "Redis consumer name")
}

// InitConfig binds the command's flags and TOPICCHAT_* env vars into v, then
// reads the config file if one was given.
func InitConfig(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return errors.Wrap(err, "bind flags")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read config %s", path)
		}
		log.Debug().Str("config_path", v.ConfigFileUsed()).Msg("using config file")
	}
	return nil
}

func LoggingSettings(v *viper.Viper) logging.Settings {
	return logging.Settings{
		Level:      v.GetString("log-level"),
		Format:     v.GetString("log-format"),
		WithCaller: v.GetBool("with-caller"),
	}
}

func RouterSettings(v *viper.Viper) (webchat.RouterSettings, error) {
	s := webchat.DefaultRouterSettings()
	if err := v.Unmarshal(&s); err != nil {
		return s, errors.Wrap(err, "decode server settings")
	}
	if err := s.Redis.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// LoadCatalog returns the catalog from --agents-file, or the built-in one.
func LoadCatalog(v *viper.Viper) (*agents.Catalog, error) {
	path := strings.TrimSpace(v.GetString("agents-file"))
	if path == "" {
		return agents.NewDefaultCatalog(), nil
	}
	return agents.LoadCatalogFile(path)
}
