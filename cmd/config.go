// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment prefix that is used for configuration
const EnvPrefix = "gateway"

var cfgFile string

// configErr is set when the config file could not be read. The gateway does not
// start with a partial configuration.
var configErr error

func initConfig() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	configErr = nil
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			configErr = fmt.Errorf("could not read config file %s: %w", cfgFile, err)
		} else {
			fmt.Println("Using config file:", viper.ConfigFileUsed())
		}
	}
	viper.BindEnv("debug")

	if hostname, err := os.Hostname(); err == nil {
		viper.SetDefault("client-id", hostname)
	}
}

var config = viper.GetViper()

// requiredConfig are the settings without which the gateway can not start
var requiredConfig = []string{"broker-server", "client-id", "handler", "radio-address"}

func checkConfig() error {
	if configErr != nil {
		return configErr
	}
	var missing []string
	for _, key := range requiredConfig {
		if config.GetString(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// handlerSettings parses key=value handler settings
func handlerSettings(settings []string) (map[string]string, error) {
	parsed := make(map[string]string, len(settings))
	for _, setting := range settings {
		parts := strings.SplitN(setting, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid handler setting %q, expected key=value", setting)
		}
		parsed[parts[0]] = parts[1]
	}
	return parsed, nil
}
