package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"device-rpc/internal/config"
	"device-rpc/internal/rpc"
	"device-rpc/internal/transport"
	"device-rpc/internal/utils"
)

// options are the persistent flags shared by every command
type options struct {
	configFile string
	logLevel   string
	viper      *viper.Viper
}

// session is one open device link
type session struct {
	config *config.Config
	logger *zap.Logger
	client *rpc.Client
}

func (s *session) close() {
	s.client.Disconnect()
	s.logger.Sync()
}

// Execute runs the command line and returns the process exit code
func Execute(ctx context.Context) int {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

// NewRootCommand builds the rpcctl command tree
func NewRootCommand() *cobra.Command {
	opts := &options{viper: config.NewViper()}

	root := &cobra.Command{
		Use:          "rpcctl",
		Short:        "Talk to a JSON-RPC device firmware over serial or TCP",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (default: ./config.yaml, ./config/, /etc/device-rpc/)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flags.StringP("mode", "m", "serial", "transport mode: serial or socket")
	flags.StringP("serial-port", "p", transport.DefaultSerialConfig().Port, "serial port")
	flags.IntP("baud", "b", transport.DefaultSerialConfig().BaudRate, "serial baud rate")
	flags.String("host", transport.DefaultSocketConfig().Host, "device host for socket mode")
	flags.Int("tcp-port", transport.DefaultSocketConfig().Port, "device port for socket mode")
	flags.Duration("timeout", rpc.DefaultTimeout, "per call response timeout")

	for key, flag := range map[string]string{
		"transport.mode":             "mode",
		"transport.serial.port":      "serial-port",
		"transport.serial.baud_rate": "baud",
		"transport.socket.host":      "host",
		"transport.socket.port":      "tcp-port",
		"transport.timeout":          "timeout",
	} {
		if err := opts.viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}

	root.AddCommand(
		newPortsCommand(opts),
		newCallCommand(opts),
		newInfoCommand(opts),
		newMethodsCommand(),
		newPinCommand(opts),
		newAnalogCommand(opts),
		newPulseCommand(opts),
	)
	return root
}

// load reads configuration with flag overrides applied
func (o *options) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.viper, o.configFile)
	if err != nil {
		return nil, nil, err
	}

	logger, err := utils.NewLogger(&config.LoggingConfig{
		Level:  o.logLevel,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// open connects to the device selected by the flags. The serial transport
// waits for the board to settle after the reset the port open triggers.
func (o *options) open(ctx context.Context) (*session, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, err
	}

	link, err := transport.New(cfg.Transport.TransportConfig(), logger)
	if err != nil {
		return nil, err
	}
	client := rpc.NewClient(link, rpc.Options{Timeout: cfg.Transport.Timeout, Logger: logger})

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return nil, err
	}
	return &session{config: cfg, logger: logger, client: client}, nil
}

// withSession opens the device, runs fn and closes the link
func (o *options) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	s, err := o.open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()
	return fn(cmd.Context(), s)
}
