package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/outofforest/edk"
	"github.com/outofforest/edk/cmd/edk/wire"
	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
)

const (
	flagConfig       = "config"
	flagMasterHandle = "master-handle"
	flagConnectionID = "connection-id"
)

func main() {
	log := logger.New(logger.DefaultConfig)
	ctx, cancel := signal.NotifyContext(logger.WithLogger(context.Background(), log), os.Interrupt,
		syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Error("Command failed", zap.Error(err))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "edk",
		Short:         "Runs master process pinging its slaves over message pipes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String(flagConfig, "", "path to the TOML config file")

	masterCmd := &cobra.Command{
		Use:   "master",
		Short: "Starts master process and its slaves",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString(flagConfig)
			if err != nil {
				return errors.WithStack(err)
			}
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			return runMaster(cmd.Context(), cfg, path)
		},
	}

	slaveCmd := &cobra.Command{
		Use:    "slave",
		Short:  "Runs slave process, started by master",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString(flagConfig)
			if err != nil {
				return errors.WithStack(err)
			}
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}

			handle, err := cmd.Flags().GetString(flagMasterHandle)
			if err != nil {
				return errors.WithStack(err)
			}
			if cfg.IPC.MasterHandle, err = edk.ParsePlatformHandle(handle); err != nil {
				return err
			}

			id, err := cmd.Flags().GetString(flagConnectionID)
			if err != nil {
				return errors.WithStack(err)
			}
			connectionID, err := edk.ParseConnectionIdentifier(id)
			if err != nil {
				return err
			}

			return runSlave(cmd.Context(), cfg.slaveConfig(), connectionID)
		},
	}
	slaveCmd.Flags().String(flagMasterHandle, "", "dialing end of the pipe to master")
	slaveCmd.Flags().String(flagConnectionID, "", "identifier of the bootstrap connection")

	rootCmd.AddCommand(masterCmd, slaveCmd)
	return rootCmd
}

// runMaster starts the slaves, passing them the config file of the master, and pings each of them.
// Slaves listen on slave_listen_address instead of listen_address.
func runMaster(ctx context.Context, cfg demoConfig, configPath string) error {
	executable, err := os.Executable()
	if err != nil {
		return errors.WithStack(err)
	}

	cfg.IPC.ProcessType = edk.ProcessTypeMaster
	ipc, err := edk.NewIPCSupport(cfg.IPC, masterDelegate{log: logger.Get(ctx)}, nil)
	if err != nil {
		return err
	}

	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("ipc", parallel.Fail, ipc.Run)
		spawn("slaves", parallel.Exit, func(ctx context.Context) error {
			return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
				for i := range cfg.Slaves {
					name := fmt.Sprintf("slave-%d", i)

					server, client, err := ipc.CreatePlatformChannelPair()
					if err != nil {
						return err
					}
					connectionID, err := ipc.GenerateConnectionIdentifier()
					if err != nil {
						return err
					}
					pipe, slaveID, err := ipc.ConnectToSlave(connectionID, name, server, nil, nil)
					if err != nil {
						return err
					}

					log := logger.Get(ctx).With(zap.String("slave", name), zap.Uint64("processID", uint64(slaveID)))

					spawn(name, parallel.Continue, func(ctx context.Context) error {
						args := []string{
							"slave",
							"--" + flagMasterHandle, client.String(),
							"--" + flagConnectionID, connectionID.String(),
						}
						if configPath != "" {
							args = append(args, "--"+flagConfig, configPath)
						}

						cmd := exec.CommandContext(ctx, executable, args...)
						cmd.Stdout = os.Stdout
						cmd.Stderr = os.Stderr
						return errors.Wrapf(cmd.Run(), "%s failed", name)
					})
					spawn(name+"-pinger", parallel.Continue, func(ctx context.Context) error {
						defer pipe.Close()

						for seq := range uint64(cfg.Pings) {
							if err := writeMessage(pipe, &wire.Ping{Seq: seq, Slave: name}); err != nil {
								return err
							}
							msg, ok, err := readMessage(ctx, pipe)
							if err != nil {
								return err
							}
							if !ok {
								return errors.Errorf("%s closed the pipe", name)
							}
							pong, ok := msg.(*wire.Pong)
							if !ok || pong.Seq != seq || edk.ProcessIdentifier(pong.ProcessID) != slaveID {
								return errors.Errorf("unexpected message %#v", msg)
							}
							log.Info("Pong received", zap.Uint64("seq", pong.Seq))
						}
						return nil
					})
				}
				return nil
			})
		})
		return nil
	})
}

func runSlave(ctx context.Context, cfg demoConfig, connectionID edk.ConnectionIdentifier) error {
	cfg.IPC.ProcessType = edk.ProcessTypeSlave
	ipc, err := edk.NewIPCSupport(cfg.IPC, slaveDelegate{log: logger.Get(ctx)}, nil)
	if err != nil {
		return err
	}

	pipe, err := ipc.ConnectToMaster(connectionID, nil, nil)
	if err != nil {
		return err
	}

	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("ipc", parallel.Fail, ipc.Run)
		spawn("ponger", parallel.Exit, func(ctx context.Context) error {
			defer pipe.Close()

			for {
				msg, ok, err := readMessage(ctx, pipe)
				if err != nil {
					return err
				}
				if !ok {
					logger.Get(ctx).Info("Master closed the pipe")
					return nil
				}
				ping, ok := msg.(*wire.Ping)
				if !ok {
					return errors.Errorf("unexpected message %T", msg)
				}
				logger.Get(ctx).Debug("Ping received", zap.String("slave", ping.Slave), zap.Uint64("seq", ping.Seq))
				if err := writeMessage(pipe, &wire.Pong{
					Seq:       ping.Seq,
					ProcessID: uint64(ipc.ProcessIdentifier()),
				}); err != nil {
					return err
				}
			}
		})
		return nil
	})
}

func writeMessage(d *edk.MessagePipeDispatcher, msg any) error {
	payload, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	if result := d.WriteMessage(payload, nil, edk.WriteMessageFlagNone); result != edk.ResultOK {
		return errors.WithStack(result)
	}
	return nil
}

// readMessage returns false if the peer closed the pipe.
func readMessage(ctx context.Context, d *edk.MessagePipeDispatcher) (any, bool, error) {
	result, err := edk.WaitForSignals(ctx, d, edk.HandleSignalReadable|edk.HandleSignalPeerClosed)
	if err != nil {
		return nil, false, err
	}
	if result != edk.ResultOK {
		return nil, false, errors.WithStack(result)
	}

	numBytes, numHandles, result := d.ReadMessage(nil, nil, edk.ReadMessageFlagNone)
	switch result {
	case edk.ResultFailedPrecondition:
		return nil, false, nil
	case edk.ResultOK:
		return nil, false, errors.New("empty message received")
	case edk.ResultResourceExhausted:
	default:
		return nil, false, errors.WithStack(result)
	}

	buf := make([]byte, numBytes)
	handles := make([]edk.Dispatcher, numHandles)
	if _, _, result := d.ReadMessage(buf, handles, edk.ReadMessageFlagNone); result != edk.ResultOK {
		return nil, false, errors.WithStack(result)
	}
	for _, h := range handles {
		h.Close()
	}

	msg, err := wire.Decode(buf)
	if err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

type masterDelegate struct {
	log *zap.Logger
}

func (d masterDelegate) OnShutdownComplete() {
	d.log.Info("Master shut down")
}

func (d masterDelegate) OnSlaveDisconnect(slaveInfo edk.SlaveInfo) {
	d.log.Info("Slave disconnected", zap.Any("slave", slaveInfo))
}

type slaveDelegate struct {
	log *zap.Logger
}

func (d slaveDelegate) OnShutdownComplete() {
	d.log.Info("Slave shut down")
}

func (d slaveDelegate) OnMasterDisconnect() {
	d.log.Info("Master disconnected")
}
