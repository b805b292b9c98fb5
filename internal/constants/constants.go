package constants

import "time"

const (
	AppName          = "jing-token-client"
	WalletFile       = "wallet.json"
	AssetsFile       = "assets.json"
	NetworksFile     = "networks.json"
	ConfigFileName   = "config"
	EnvPrefix        = "JING"
	EnvFolderVarName = "JING_ENV"

	SchemaV1      = 1
	FilePerm      = 0o600
	DirectoryPerm = 0o700

	// AAD const for the encrypted signer key file
	AADConstant = "jing-token-client:ethwallet:v1"

	// JING token deployment (Ethereum mainnet)
	DefaultContractAddress = "0x15c12f6854c88175d2cd1448ffcf668be61cf4aa"
	DefaultTargetNetwork   = "mainnet"
	DefaultTokenSymbol     = "JINGRM"
	DefaultTokenDecimals   = 18
	EtherDecimals          = 18

	DefaultSwitchWait       = 3 * time.Second
	DefaultBannerTimeout    = 5 * time.Second
	DefaultReceiptPoll      = 2 * time.Second
	DefaultDisplayFractions = 6
)
