package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/jingrm/jing-token-client/internal/chains"
	"github.com/jingrm/jing-token-client/internal/constants"
	"github.com/jingrm/jing-token-client/internal/provider"
	"github.com/jingrm/jing-token-client/internal/session"
)

const (
	ApprovalPrompt = "prompt"
	ApprovalAuto   = "auto"
)

type ClientSettings struct {
	LocalHost        string
	Port             string
	AllowedOrigins   []string
	Approval         string
	DisplayFractions int
	BannerTimeout    time.Duration
	SwitchWait       time.Duration
	ReceiptPoll      time.Duration
	DialTimeout      time.Duration
	InfuraKey        string
	APIRateLimit     float64
	APIRateBurst     int
	// UIDir is an optional directory holding a built dashboard.
	UIDir string
}

type TokenSettings struct {
	ContractAddress string
	TargetNetwork   string
	Symbol          string
	Decimals        *uint8
	Image           string
}

type Config struct {
	ClientSettings *ClientSettings
	Token          *TokenSettings
	EthNetworks    *chains.AllChainsConfig `mapstructure:"Ethereum"`
}

func infuraRPC(chain string, key string) string {
	return fmt.Sprintf("https://%s.infura.io/v3/%s", chain, key)
}

// Load reads the embedded defaults, merges the first config.yaml found in
// the search paths and applies JING_* environment overrides.
func Load() (*Config, error) {
	paths := []string{
		UserDir(),
		filepath.Join(".", "config"),
		".",
	}
	return LoadFrom(paths)
}

// UserDir is the per-user directory searched first for config.yaml.
func UserDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", constants.AppName)
}

// UserSettings are the values `config init` asks for.
type UserSettings struct {
	InfuraKey string
	Port      string
	Approval  string
}

// WriteUserConfig writes a config.yaml override into dir. Only the given
// settings are written; everything else keeps the embedded defaults.
func WriteUserConfig(dir string, s UserSettings) (string, error) {
	switch s.Approval {
	case ApprovalPrompt, ApprovalAuto:
	default:
		return "", errors.Newf("approval must be %q or %q, got %q", ApprovalPrompt, ApprovalAuto, s.Approval)
	}
	if err := os.MkdirAll(dir, constants.DirectoryPerm); err != nil {
		return "", errors.Wrapf(err, "mkdir %s", dir)
	}

	v := viper.New()
	v.Set("ClientSettings.InfuraKey", s.InfuraKey)
	v.Set("ClientSettings.Port", s.Port)
	v.Set("ClientSettings.Approval", s.Approval)

	path := filepath.Join(dir, constants.ConfigFileName+".yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return "", errors.Wrap(err, "write config")
	}
	// holds the Infura key
	if err := os.Chmod(path, constants.FilePerm); err != nil {
		return "", errors.Wrap(err, "chmod config")
	}
	return path, nil
}

func LoadFrom(paths []string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(EmbeddedConfigYAML)); err != nil {
		return nil, errors.Wrap(err, "read embedded config")
	}

	v.SetConfigName(constants.ConfigFileName)
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "merge config file")
		}
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if cfg.ClientSettings.InfuraKey != "" {
		if err := cfg.InjectInfuraKey(cfg.ClientSettings.InfuraKey); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.ClientSettings == nil {
		c.ClientSettings = &ClientSettings{}
	}
	if c.Token == nil {
		return errors.New("config: Token section is missing")
	}
	if c.EthNetworks == nil || len(c.EthNetworks.Networks) == 0 {
		return errors.New("config: Ethereum.networks is empty")
	}
	c.EthNetworks.Normalize()

	cs := c.ClientSettings
	cs.Approval = strings.ToLower(strings.TrimSpace(cs.Approval))
	switch cs.Approval {
	case "":
		cs.Approval = ApprovalPrompt
	case ApprovalPrompt, ApprovalAuto:
	default:
		return errors.Newf("config: ClientSettings.Approval must be %q or %q, got %q", ApprovalPrompt, ApprovalAuto, cs.Approval)
	}
	if cs.DisplayFractions <= 0 {
		cs.DisplayFractions = constants.DefaultDisplayFractions
	}

	t := c.Token
	if strings.TrimSpace(t.ContractAddress) == "" {
		t.ContractAddress = constants.DefaultContractAddress
	}
	if !common.IsHexAddress(t.ContractAddress) {
		return errors.Newf("config: Token.ContractAddress %q is not an address", t.ContractAddress)
	}
	t.TargetNetwork = strings.ToLower(strings.TrimSpace(t.TargetNetwork))
	if t.TargetNetwork == "" {
		t.TargetNetwork = constants.DefaultTargetNetwork
	}
	if _, ok := c.EthNetworks.Networks[t.TargetNetwork]; !ok {
		return errors.Newf("config: Token.TargetNetwork %q is not in Ethereum.networks", t.TargetNetwork)
	}
	if strings.TrimSpace(c.EthNetworks.ActiveNetwork) == "" {
		c.EthNetworks.ActiveNetwork = t.TargetNetwork
	}
	return nil
}

func (c *Config) InjectInfuraKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("infura api key is empty")
	}

	for netName, net := range c.EthNetworks.Networks {
		rpcURL := infuraRPC(netName, key)

		if len(net.RPCs) == 0 {
			net.RPCs = []chains.RPC{{Name: "Infura", URL: rpcURL}}
		} else {
			net.RPCs[0].Name = "Infura"
			net.RPCs[0].URL = rpcURL
		}

		// map values are copies
		c.EthNetworks.Networks[netName] = net
	}
	return nil
}

// DropEmptyRPCs removes endpoints that still have no URL, e.g. the Infura
// slot when no key was configured.
func (c *Config) DropEmptyRPCs() {
	for name, net := range c.EthNetworks.Networks {
		kept := net.RPCs[:0]
		for _, r := range net.RPCs {
			if strings.TrimSpace(r.URL) != "" {
				kept = append(kept, r)
			}
		}
		net.RPCs = kept
		c.EthNetworks.Networks[name] = net
	}
}

// SessionConfig derives the wallet session settings from the token and
// target network sections.
func (c *Config) SessionConfig() session.Config {
	target := c.EthNetworks.Networks[c.Token.TargetNetwork]

	var explorers []string
	if target.Explorer != "" {
		explorers = []string{target.Explorer}
	}
	return session.Config{
		ContractAddress: common.HexToAddress(c.Token.ContractAddress),
		TargetChain: provider.AddChainParams{
			ChainIDHex:        target.ChainIDHex,
			ChainName:         target.Name,
			NativeCurrency:    target.Currency,
			RPCURLs:           target.RPCURLs(),
			BlockExplorerURLs: explorers,
		},
		TargetNetworkName: target.Name,
		DefaultSymbol:     c.Token.Symbol,
		DefaultDecimals:   c.Token.Decimals,
		TokenImage:        c.Token.Image,
		SwitchWait:        c.ClientSettings.SwitchWait,
		ReceiptPoll:       c.ClientSettings.ReceiptPoll,
		BannerTimeout:     c.ClientSettings.BannerTimeout,
	}
}
