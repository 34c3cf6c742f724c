// Copyright 2024 Curaview, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version of the build; set via ldflags
var Version = "dev"

// GitCommit of the build; set via ldflags
var GitCommit = "unknown"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "framegate",
	Short:   "Authenticated streaming proxy for medical image frames",
	Version: fmt.Sprintf("%s, build %s", Version, GitCommit),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fatal(err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Flags available to all subcommands
	rootCmd.PersistentFlags().String("region", "us-east-1", "AWS region")
	rootCmd.PersistentFlags().String("pool-id", "", "User pool ID of the token issuer")
	rootCmd.PersistentFlags().String("client-id", "", "Expected token audience")
	rootCmd.PersistentFlags().StringSlice("origins", nil, "Allowed origin patterns")
	rootCmd.PersistentFlags().String("upstream", "", "Override the upstream image API host")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	viper.BindPFlag("region", rootCmd.PersistentFlags().Lookup("region"))
	viper.BindPFlag("pool-id", rootCmd.PersistentFlags().Lookup("pool-id"))
	viper.BindPFlag("client-id", rootCmd.PersistentFlags().Lookup("client-id"))
	viper.BindPFlag("origins", rootCmd.PersistentFlags().Lookup("origins"))
	viper.BindPFlag("upstream", rootCmd.PersistentFlags().Lookup("upstream"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

// initConfig reads in ENV variables if set
func initConfig() {

	// Environment variables will be prefixed with "FRAMEGATE_"
	viper.SetEnvPrefix("framegate")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
