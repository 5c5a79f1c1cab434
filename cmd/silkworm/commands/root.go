package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gurukamath/silkworm/config"
	"github.com/gurukamath/silkworm/libs/cli"
	"github.com/gurukamath/silkworm/libs/log"
)

var (
	conf   = config.DefaultConfig()
	logger log.Logger
)

// ParseConfig reads viper's bound flags and config file into conf, applies
// --home as its root, and rejects a malformed result before any component
// gets a chance to start against it.
func ParseConfig() (*config.Config, error) {
	if err := viper.Unmarshal(conf); err != nil {
		return nil, err
	}
	conf.SetRoot(conf.RootDir)
	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	return conf, nil
}

// RootCmd is the entry point every silkworm subcommand hangs off.
var RootCmd = &cobra.Command{
	Use:   "silkworm",
	Short: "Ethereum block-download engine",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == VersionCmd.Name() {
			return nil
		}
		if err := cli.BindFlagsLoadViper(cmd, args); err != nil {
			return err
		}
		pconf, err := ParseConfig()
		if err != nil {
			return err
		}
		conf = pconf
		config.EnsureRoot(conf.RootDir)
		logger = log.NewLoggerWithLevelAndFormat(os.Stdout, conf.LogFormat, conf.LogLevel)
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().String(cli.HomeFlag, config.DefaultSilkwormDir, "directory for config and data")
	RootCmd.PersistentFlags().Bool(cli.TraceFlag, false, "print out full stack trace on errors")
	RootCmd.PersistentFlags().String("log_level", conf.LogLevel, "log level (debug|info|error)")
	RootCmd.PersistentFlags().String("log_format", conf.LogFormat, "log output format (plain|json)")
	RootCmd.PersistentFlags().String("chain", conf.Chain, "chain to sync: mainnet, ropsten, or sepolia")
	cobra.OnInitialize(func() { cli.InitEnv("SILKWORM") })
}
