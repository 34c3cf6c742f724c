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
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/curaview/framegate/creds"
	"github.com/curaview/framegate/gateway"
	"github.com/curaview/framegate/jwks"
	"github.com/curaview/framegate/proxy"
	"github.com/curaview/framegate/token"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the authenticated frame proxy",
	Run: func(cmd *cobra.Command, args []string) {

		logger := newLogger()

		region := viper.GetString("region")
		poolID := viper.GetString("pool-id")
		clientID := viper.GetString("client-id")
		if poolID == "" || clientID == "" {
			fatal(errors.New("pool-id and client-id are required"))
		}

		provider, err := creds.NewChain()
		if err != nil {
			fatal(err)
		}

		forwarder, err := proxy.NewForwarder(proxy.Config{
			Region:       region,
			UpstreamHost: viper.GetString("upstream"),
		}, provider, proxy.WithLogger(logger))
		if err != nil {
			fatal(err)
		}

		cache := jwks.New(token.URL(region, poolID), jwks.WithLogger(logger))
		validator := token.NewValidator(cache, token.Issuer(region, poolID), clientID,
			token.WithLogger(logger))

		origins := viper.GetStringSlice("origins")
		handler := gateway.New(validator, forwarder, gateway.Config{
			Origins:               origins,
			AllowWildcardFallback: true,
		}, logger)

		addr := viper.GetString("addr")
		server := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Shut down cleanly on SIGINT or SIGTERM
		done := make(chan os.Signal, 1)
		signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		}()

		logger.WithField("addr", addr).Info("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(err)
		}
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Listen address")
	viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(serveCmd)
}
