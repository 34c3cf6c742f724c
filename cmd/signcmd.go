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
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/curaview/framegate/creds"
	"github.com/curaview/framegate/proxy"
	"github.com/curaview/framegate/sign"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a request and print the resulting headers",
	Run: func(cmd *cobra.Command, args []string) {

		cfg := proxy.Config{
			Region:       viper.GetString("region"),
			UpstreamHost: viper.GetString("upstream"),
		}
		if err := cfg.Validate(); err != nil {
			fatal(err)
		}

		provider, err := creds.NewChain()
		if err != nil {
			fatal(err)
		}
		credentials, err := provider.Retrieve(cmd.Context())
		if err != nil {
			fatal(err)
		}

		output, err := sign.Sign(sign.Input{
			Method:      viper.GetString("method"),
			Host:        cfg.Host(),
			Path:        viper.GetString("path"),
			Query:       viper.GetString("query"),
			Body:        []byte(viper.GetString("body")),
			Region:      cfg.Region,
			Service:     proxy.DefaultService,
			Time:        time.Now().UTC(),
			Credentials: credentials,
		})
		if err != nil {
			fatal(err)
		}

		names := make([]string, 0, len(output.Headers))
		for name := range output.Headers {
			names = append(names, name)
		}
		sort.Strings(names)

		name := color.New(color.FgCyan).SprintFunc()
		for _, n := range names {
			fmt.Printf("%s: %s\n", name(n), output.Headers[n])
		}
	},
}

func init() {
	signCmd.Flags().String("method", "GET", "HTTP method")
	signCmd.Flags().String("path", "/", "Request path")
	signCmd.Flags().String("query", "", "Raw query string")
	signCmd.Flags().String("body", "", "Request body")
	viper.BindPFlag("method", signCmd.Flags().Lookup("method"))
	viper.BindPFlag("path", signCmd.Flags().Lookup("path"))
	viper.BindPFlag("query", signCmd.Flags().Lookup("query"))
	viper.BindPFlag("body", signCmd.Flags().Lookup("body"))
	rootCmd.AddCommand(signCmd)
}
