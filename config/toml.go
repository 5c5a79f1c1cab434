package config

import (
	"bytes"
	"os"
	"path/filepath"
	"text/template"

	tmos "github.com/gurukamath/silkworm/libs/os"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate")
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

// EnsureRoot creates the root, config, and data directories if they don't
// exist, and panics if it fails.
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}

	if err := writeDefaultConfigFileIfNone(rootDir); err != nil {
		panic(err)
	}
}

// WriteConfigFile renders config to filePath using the TOML template below.
func WriteConfigFile(filePath string, config *Config) error {
	var buffer bytes.Buffer
	if err := configTemplate.Execute(&buffer, config); err != nil {
		return err
	}
	return writeFile(filePath, buffer.Bytes(), 0644)
}

func writeDefaultConfigFileIfNone(rootDir string) error {
	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)
	if !tmos.FileExists(configFilePath) {
		return WriteConfigFile(configFilePath, DefaultConfig())
	}
	return nil
}

func writeFile(filePath string, contents []byte, mode os.FileMode) error {
	return os.WriteFile(filePath, contents, mode)
}

const defaultConfigTemplate = `# This is a TOML config file for silkworm.
# For more information, see https://github.com/toml-lang/toml

# The root directory holding config and data.
home = "{{ .BaseConfig.RootDir }}"

# The chain to sync: mainnet, ropsten, or sepolia.
chain = "{{ .BaseConfig.Chain }}"

# Output level for logging: debug, info, error.
log_level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (logfmt key=value text) or 'json'.
log_format = "{{ .BaseConfig.LogFormat }}"

#######################################################
###       Sentry (peer transport) Configuration      ###
#######################################################
[sentry]

# gRPC dial target for the sentry peer-transport daemon.
api_addr = "{{ .Sentry.Addr }}"

# How long to wait for the gRPC channel to connect.
dial_timeout = "{{ .Sentry.DialTimeout }}"

# How long to wait before reopening the peer-stats stream after it fails to open.
stats_interval = "{{ .Sentry.StatsInterval }}"

#######################################################
###        BlockExchange Configuration               ###
#######################################################
[exchange]

# Maximum headers/bodies requested per GetBlockHeaders/GetBlockBodies call.
max_blocks_per_req = {{ .Exchange.MaxBlocksPerRequest }}

# Maximum in-flight requests outstanding to a single peer.
max_requests_per_peer = {{ .Exchange.MaxRequestsPerPeer }}

# How long to wait for a response before timing the request out.
request_deadline = "{{ .Exchange.RequestDeadline }}"

# Backoff applied when no peer is eligible for more work.
no_peer_delay = "{{ .Exchange.NoPeerDelay }}"

#######################################################
###          Store Configuration                     ###
#######################################################
[store]

# Database backend: goleveldb, memdb, boltdb, badgerdb, rocksdb, cleveldb.
backend = "{{ .Store.Backend }}"

# Database directory, relative to the home directory.
dir = "{{ .Store.Dir }}"

#######################################################
###       Instrumentation Configuration              ###
#######################################################
[instrumentation]

# When true, a Prometheus metrics endpoint is exposed.
prometheus = {{ .Instrumentation.Prometheus }}

# Address at which to expose the Prometheus endpoint.
prometheus_listen_addr = "{{ .Instrumentation.PrometheusListener }}"

# Prefix applied to every exported metric name.
namespace = "{{ .Instrumentation.Namespace }}"
`
