// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config loads the bridge's configuration the way the teacher's
// full-node daemon does: an INI file parsed first, then flag.Args()
// overrides on top, using jessevdk/go-flags struct tags as the single
// source of truth for defaults and descriptions.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "ddsbridge.conf"
	defaultLogFilename    = "ddsbridge.log"
	defaultLogLevel       = "info"
)

// defaultHomeDir, built by appDataDir, follows the XDG-ish layout dcrd's own
// config loader uses: an app-named directory under the user's home.
var defaultHomeDir = appDataDir("ddsbridge")

func appDataDir(appName string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, "."+appName)
}

// Config mirrors spec.md §6's external-interfaces table, plus the ambient
// process-lifecycle keys every dcrd-lineage daemon carries (log directory,
// debug level) and the Security-System Adapter selection this module adds.
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	HomeDir    string `short:"A" long:"homedir" description:"Directory to store data"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical}; per-subsystem lists are not accepted"`

	LocalIP string `long:"localip" description:"Local IPv4 address to bind all sockets to"`

	HeartbeatReceiveMcGroup string  `long:"heartbeatreceivemcgroup" description:"Multicast group to join for DES heartbeats"`
	HeartbeatReceivePort    uint16  `long:"heartbeatreceiveport" description:"Local port to receive heartbeats on"`
	HeartbeatReceiveTimeout float64 `long:"heartbeatreceivetimeout" description:"Seconds of silence before a DES is marked offline"`
	HeartbeatSendMcGroup    string  `long:"heartbeatsendmcgroup" description:"Target multicast group for outgoing SS heartbeats"`
	HeartbeatSendPort       uint16  `long:"heartbeatsendport" description:"Target port for outgoing SS heartbeats"`
	HeartbeatSendInterval   float64 `long:"heartbeatsendinterval" description:"Seconds between outgoing SS heartbeats"`
	HeartbeatSendTTL        int     `long:"heartbeatsendttl" description:"Outbound multicast TTL for SS heartbeats"`

	InteractiveReceivePortDes uint16  `long:"interactivereceiveportdes" description:"Local port to receive DES interactive traffic on"`
	InteractiveReceivePortDec uint16  `long:"interactivereceiveportdec" description:"Local port to receive DEC interactive traffic on"`
	InteractiveSendPortDes    uint16  `long:"interactivesendportdes" description:"Destination port for DES interactive traffic"`
	InteractiveSendPortDec    uint16  `long:"interactivesendportdec" description:"Destination port for DEC interactive traffic"`
	InteractiveDuplicatesSize int     `long:"interactiveduplicatescachesize" description:"Per-reactor duplicate-packet cache capacity"`
	InteractiveRetryInterval  float64 `long:"interactivesendretryinterval" description:"Seconds between un-acked packet retries"`
	InteractiveMaxRetries     int     `long:"interactivesendmaxretries" description:"Retries before an un-acked packet is dropped"`

	DecOperationMode uint8 `long:"decoperationmode" description:"Operation mode value sent to newly-online DECs (1-4)"`

	SSAdapterKind            string `long:"ssadapterkind" description:"Security-System Adapter backend: static or http"`
	SSAdapterBaseURL         string `long:"ssadapterbaseurl" description:"Base URL of the HTTP-backed Security-System Adapter"`
	SSAdapterTimeout         float64 `long:"ssadaptertimeout" description:"Seconds to wait for the Security-System Adapter backend"`
	SSAdapterCredentialUser  string `long:"ssadapterusername" description:"Username for the Security-System Adapter backend (parsed; the http adapter does not send it)"`
	SSAdapterCredentialPass  string `long:"ssadapterpassword" description:"Password for the Security-System Adapter backend (parsed; the http adapter does not send it)"`

	StateStoreDir      string  `long:"statestoredir" description:"Directory for the diagnostic leveldb state mirror; empty disables it"`
	StateStoreInterval float64 `long:"statestoreinterval" description:"Seconds between diagnostic state-mirror writes"`

	AdminListenAddr string `long:"adminlisten" description:"Address for the read-only admin/status websocket; empty disables it"`
}

// defaultConfig returns a Config carrying the same values as the reference
// deployment in original_source/test.py, which this module also ships as
// sample-ddsbridge.ini.
func defaultConfig() Config {
	return Config{
		ConfigFile: filepath.Join(defaultHomeDir, defaultConfigFilename),
		HomeDir:    defaultHomeDir,
		LogDir:     filepath.Join(defaultHomeDir, "logs"),
		DebugLevel: defaultLogLevel,

		LocalIP: "0.0.0.0",

		HeartbeatReceiveMcGroup: "234.46.30.7",
		HeartbeatReceivePort:    47307,
		HeartbeatReceiveTimeout: 3.0,
		HeartbeatSendMcGroup:    "234.46.30.7",
		HeartbeatSendPort:       48307,
		HeartbeatSendInterval:   1.0,
		HeartbeatSendTTL:        255,

		InteractiveReceivePortDes: 45303,
		InteractiveReceivePortDec: 46308,
		InteractiveSendPortDes:    46303,
		InteractiveSendPortDec:    45308,
		InteractiveDuplicatesSize: 5,
		InteractiveRetryInterval:  1.0,
		InteractiveMaxRetries:     5,

		DecOperationMode: 3,

		SSAdapterKind:    "static",
		SSAdapterTimeout: 5.0,

		StateStoreDir:      "",
		StateStoreInterval: 5.0,

		AdminListenAddr: "127.0.0.1:8844",
	}
}

// Load performs the two-pass parse the teacher's node config loader does:
// a first pass to discover -C/--configfile (and -A/--homedir, which
// relocates the default config path), an INI parse of that file, and a
// final flag parse that overrides anything the file set.
func Load(args []string) (*Config, error) {
	cfg := defaultConfig()

	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default&^flags.PrintErrors&^flags.HelpFlag)
	if _, err := preParser.ParseArgs(args); err != nil {
		if !flagsErrIsHelp(err) {
			return nil, err
		}
	}
	if preCfg.HomeDir != "" && preCfg.HomeDir != cfg.HomeDir {
		cfg.HomeDir = preCfg.HomeDir
		cfg.ConfigFile = filepath.Join(cfg.HomeDir, defaultConfigFilename)
		cfg.LogDir = filepath.Join(cfg.HomeDir, "logs")
	}
	if preCfg.ConfigFile != "" {
		cfg.ConfigFile = preCfg.ConfigFile
	}

	if _, err := os.Stat(cfg.ConfigFile); err == nil {
		parser := flags.NewParser(&cfg, flags.Default)
		if err := flags.NewIniParser(parser).ParseFile(cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", cfg.ConfigFile, err)
		}
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func flagsErrIsHelp(err error) bool {
	flagsErr, ok := err.(*flags.Error)
	return ok && flagsErr.Type == flags.ErrHelp
}

// validate checks the fields the wire layer cannot recover from at runtime:
// malformed IPv4 addresses, an unknown adapter kind, a duplicates cache size
// or max retry count below 1, and an operation mode outside 1..4.
func (c *Config) validate() error {
	if net.ParseIP(c.LocalIP) == nil {
		return fmt.Errorf("invalid localip %q", c.LocalIP)
	}
	if net.ParseIP(c.HeartbeatReceiveMcGroup) == nil {
		return fmt.Errorf("invalid heartbeatreceivemcgroup %q", c.HeartbeatReceiveMcGroup)
	}
	if net.ParseIP(c.HeartbeatSendMcGroup) == nil {
		return fmt.Errorf("invalid heartbeatsendmcgroup %q", c.HeartbeatSendMcGroup)
	}
	switch c.SSAdapterKind {
	case "static", "http":
	default:
		return fmt.Errorf("invalid ssadapterkind %q: want static or http", c.SSAdapterKind)
	}
	if c.InteractiveDuplicatesSize < 1 {
		return fmt.Errorf("interactiveduplicatescachesize must be >= 1")
	}
	if c.InteractiveMaxRetries < 1 {
		return fmt.Errorf("interactivesendmaxretries must be >= 1")
	}
	if c.DecOperationMode < 1 || c.DecOperationMode > 4 {
		return fmt.Errorf("decoperationmode must be in 1..4")
	}
	return nil
}
