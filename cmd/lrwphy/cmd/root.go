package cmd

import (
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lorawan-server/lrwphy/internal/codec"
	"github.com/lorawan-server/lrwphy/internal/config"
	"github.com/lorawan-server/lrwphy/internal/decoder"
	"github.com/lorawan-server/lrwphy/internal/storage"
)

// errReported marks failures whose details were already written to the output
var errReported = errors.New("reported")

type rootOptions struct {
	cfgFile  string
	logLevel string
	version  string
	cfg      *config.Config
}

func newRootCmd(version string) *cobra.Command {
	opts := &rootOptions{version: version}

	cmd := &cobra.Command{
		Use:   "lrwphy",
		Short: "LoRaWAN PHYPayload decoder",
		Long: `lrwphy decodes LoRaWAN PHYPayloads into their MAC layer fields.
It decodes frames given on the command line, serves the decoder over a
REST API and decodes gateway uplinks received over NATS or Semtech UDP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			setupLogging(cmd.ErrOrStderr(), cfg.Log)
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "配置文件路径 (可选)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "日志级别 (debug, info, warn, error)")

	cmd.AddCommand(
		newDecodeCmd(opts),
		newEncryptCmd(opts),
		newJoinKeysCmd(opts),
		newSelftestCmd(opts),
		newServeCmd(opts),
		newHashPasswordCmd(opts),
		newVersionCmd(opts),
	)

	return cmd
}

// Execute executes the root command.
func Execute(version string) {
	if err := newRootCmd(version).Execute(); err != nil {
		if !errors.Is(err, errReported) {
			log.Error().Err(err).Msg("命令执行失败")
		}
		os.Exit(1)
	}
}

// setupLogging 设置日志
func setupLogging(w io.Writer, cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("无效的日志级别，使用info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// newService builds the decoder service from configuration
func newService(cfg *config.Config, store storage.Store) (*decoder.Service, error) {
	var c *codec.Codec
	if cfg.Decoder.CodecScript != "" {
		var err error
		if c, err = codec.Load(cfg.Decoder.CodecScript); err != nil {
			return nil, err
		}
	}
	return decoder.NewService(cfg.Decoder, store, c)
}
