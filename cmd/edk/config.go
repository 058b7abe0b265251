package main

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/outofforest/edk"
)

type fileConfig struct {
	ListenAddress      string `toml:"listen_address"`
	SlaveListenAddress string `toml:"slave_listen_address"`
	MaxMessageSize     uint64 `toml:"max_message_size"`
	Slaves             int    `toml:"slaves"`
	Pings              int    `toml:"pings"`
}

type demoConfig struct {
	IPC edk.Config

	// SlaveListenAddress replaces the listen address of IPC config in slaves. All the slaves share it,
	// so it should use port 0.
	SlaveListenAddress string
	Slaves             int
	Pings              int
}

func defaultDemoConfig() demoConfig {
	ipc := edk.DefaultConfig()
	return demoConfig{
		IPC:                ipc,
		SlaveListenAddress: ipc.ListenAddress,
		Slaves:             2,
		Pings:              3,
	}
}

// slaveConfig returns the config of the slave process.
func (c demoConfig) slaveConfig() demoConfig {
	c.IPC.ListenAddress = c.SlaveListenAddress
	return c
}

// loadConfig overlays values set in the file on top of the defaults. Empty path means defaults.
func loadConfig(path string) (demoConfig, error) {
	cfg := defaultDemoConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return demoConfig{}, errors.Wrapf(err, "loading config %s failed", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return demoConfig{}, errors.Errorf("unknown config key %q", undecoded[0].String())
	}

	if meta.IsDefined("listen_address") {
		cfg.IPC.ListenAddress = strings.TrimSpace(raw.ListenAddress)
	}
	if meta.IsDefined("slave_listen_address") {
		cfg.SlaveListenAddress = strings.TrimSpace(raw.SlaveListenAddress)
		if cfg.SlaveListenAddress == "" {
			return demoConfig{}, errors.New("slave listen address is empty")
		}
	}
	if meta.IsDefined("max_message_size") {
		cfg.IPC.MaxMessageSize = raw.MaxMessageSize
	}
	if meta.IsDefined("slaves") {
		if raw.Slaves < 0 {
			return demoConfig{}, errors.Errorf("invalid number of slaves %d", raw.Slaves)
		}
		cfg.Slaves = raw.Slaves
	}
	if meta.IsDefined("pings") {
		if raw.Pings < 0 {
			return demoConfig{}, errors.Errorf("invalid number of pings %d", raw.Pings)
		}
		cfg.Pings = raw.Pings
	}

	if err := cfg.IPC.Validate(); err != nil {
		return demoConfig{}, err
	}
	return cfg, nil
}
