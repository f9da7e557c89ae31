/*
Copyright 2024 SerialLink Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smchurchill/dewd/config"
	"github.com/smchurchill/dewd/internal/dispatch"
	"github.com/smchurchill/dewd/internal/session"
	"github.com/smchurchill/dewd/internal/wire"
)

// defaultBaudRate is used for every opened device; the command protocol has
// no per-port baud flag since spec scope treats line discipline as fixed.
const defaultBaudRate = 9600

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dispatcher",
	Long: `Start the dispatcher: open the configured serial devices, listen for
TCP client connections, and route decoded flopoint records between them.

Example:
  dewd serve --read-write /dev/ttyS0 --listen :2023
  dewd serve --write-test /dev/ttyS1 --read /dev/ttyS2`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "TCP listen address (default :2023)")
	serveCmd.Flags().StringArray("read", nil, "device opened poll-read (repeatable)")
	serveCmd.Flags().StringArray("read-write", nil, "device opened read-write (repeatable)")
	serveCmd.Flags().StringArray("write", nil, "device opened write-only (repeatable)")
	serveCmd.Flags().StringArray("read-write-test", nil, "device opened read-write with a synthetic waveform generator (repeatable)")
	serveCmd.Flags().StringArray("write-test", nil, "device opened write-only with a synthetic waveform generator (repeatable)")
	serveCmd.Flags().String("log-dir", "", "directory for append-only message/failure logs (default /tmp/dewd/)")

	if err := viper.BindPFlag("server.listen_address", serveCmd.Flags().Lookup("listen")); err != nil {
		log.Warn("failed to bind listen flag", "error", err)
	}
	if err := viper.BindPFlag("logging.dir", serveCmd.Flags().Lookup("log-dir")); err != nil {
		log.Warn("failed to bind log-dir flag", "error", err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := initLogger(cfg)

	if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
		cfg.Server.ListenAddress = addr
	}
	if addr, _ := cmd.Flags().GetString("log-dir"); addr != "" {
		cfg.Logging.Dir = addr
	}

	logger.Info("starting dispatcher",
		"version", Version,
		"listen", cfg.Server.ListenAddress,
		"log_dir", cfg.Logging.Dir)

	var sink dispatch.MessageSink
	if cfg.Logging.RawCapture {
		fileSink, err := dispatch.NewFileSink(cfg.Logging.Dir)
		if err != nil {
			return fmt.Errorf("failed to open log sink: %w", err)
		}
		defer fileSink.Close()
		sink = fileSink
	}

	d := dispatch.New(wire.DefaultCodec{}, cfg.Serial.RingCapacity, logger, sink)

	portSpecs, err := collectPortSpecs(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, spec := range portSpecs {
		port, err := session.OpenPort(spec.name, defaultBaudRate)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", spec.name, err)
		}

		serialCfg := session.SerialConfig{
			Name:           spec.name,
			Role:           spec.role,
			Codec:          wire.DefaultCodec{},
			MaxFrameLength: cfg.Serial.MaxFrameLength,
			PollInterval:   time.Duration(cfg.Serial.PollIntervalMs) * time.Millisecond,
		}
		if spec.role.TestWrites() {
			serialCfg.Generator = wire.NewMockGenerator(spec.name, 0)
		}

		s := session.NewSerial(port, serialCfg, d, logger)
		d.AddSerialPort(s, spec.name)
		go s.Run(ctx)

		logger.Info("opened serial port", "device", spec.name, "role", spec.role.String())
	}

	d.BuildCommandTree()
	go d.Run(ctx)

	listener, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.ListenAddress, err)
	}
	defer listener.Close()

	go acceptLoop(ctx, listener, d, logger)

	logger.Info("dispatcher listening", "address", cfg.Server.ListenAddress)

	<-ctx.Done()
	logger.Info("shutting down gracefully...")
	return nil
}

// portSpec names one device and the role it should be opened in, gathered
// from serve's repeatable flags.
type portSpec struct {
	name string
	role session.Role
}

func collectPortSpecs(cmd *cobra.Command) ([]portSpec, error) {
	var specs []portSpec

	add := func(flag string, role session.Role) error {
		names, err := cmd.Flags().GetStringArray(flag)
		if err != nil {
			return err
		}
		for _, name := range names {
			specs = append(specs, portSpec{name: name, role: role})
		}
		return nil
	}

	if err := add("read", session.RolePollRead); err != nil {
		return nil, err
	}
	if err := add("read-write", session.RoleReadWrite); err != nil {
		return nil, err
	}
	if err := add("write", session.RoleWrite); err != nil {
		return nil, err
	}
	if err := add("read-write-test", session.RoleReadWriteTest); err != nil {
		return nil, err
	}
	if err := add("write-test", session.RoleWriteTest); err != nil {
		return nil, err
	}

	return specs, nil
}

// acceptLoop accepts incoming TCP clients until ctx is canceled, handing
// each one to the dispatcher as a Network session.
func acceptLoop(ctx context.Context, listener net.Listener, d *dispatch.Dispatcher, logger *log.Logger) {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warn("accept error", "err", err)
				continue
			}
		}

		n := session.NewNetwork(conn, d, logger)
		d.RegisterNetwork(n)
		go n.Start()
	}
}

// initLogger creates and configures a charmbracelet logger based on config
func initLogger(cfg *config.Config) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		ReportCaller:    true,
	})

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	return logger
}
