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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/curaview/framegate/bridge"
	"github.com/curaview/framegate/decode"
	"github.com/curaview/framegate/format"
)

type fetchRow struct {
	Frame   string
	Width   int
	Height  int
	Bits    int
	Chunks  int
	Fetch   string
	Decode  string
	Encoded string
	Decoded string
	Error   string
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [frame-id ...]",
	Short: "Fetch frames through the proxy and decode them progressively",
	Run: func(cmd *cobra.Command, args []string) {

		if len(args) == 0 {
			fatal(errors.New("at least one frame id is required"))
		}
		endpoint := viper.GetString("url")
		if endpoint == "" {
			fatal(errors.New("url is required"))
		}
		bearer := viper.GetString("token")
		workers := viper.GetInt("workers")

		fetch := func(ctx context.Context, id string) (io.ReadCloser, error) {
			u, err := url.Parse(endpoint)
			if err != nil {
				return nil, err
			}
			q := u.Query()
			q.Set(bridge.FrameParam, id)
			u.RawQuery = q.Encode()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
			if err != nil {
				return nil, err
			}
			if bearer != "" {
				req.Header.Set("Authorization", "Bearer "+bearer)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode != http.StatusOK {
				message, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				return nil, fmt.Errorf("fetch failed (%d): %s", resp.StatusCode, message)
			}
			return resp.Body, nil
		}

		progress := color.New(color.FgGreen).FprintfFunc()
		emit := func(id string, frame *decode.Frame) {
			if !frame.Complete {
				progress(os.Stderr, "%s: preview %dx%d after %d chunks\n",
					id, frame.Info.Width, frame.Info.Height, frame.Chunks)
			}
		}

		results := decode.DecodeAll(cmd.Context(), decode.FlateCodec{}, fetch, args, workers, emit)
		sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })

		rows := make([]interface{}, 0, len(results))
		failed := false
		for _, result := range results {
			row := fetchRow{Frame: result.ID}
			if result.Err != nil {
				row.Error = result.Err.Error()
				failed = true
			} else {
				row.Width = result.Frame.Info.Width
				row.Height = result.Frame.Info.Height
				row.Bits = result.Frame.Info.BitsPerSample
				row.Chunks = result.Frame.Chunks
				row.Fetch = format.Duration(result.Metrics.FetchTime)
				row.Decode = format.Duration(result.Metrics.DecodeTime)
				row.Encoded = format.ByteCount(result.Metrics.EncodedSize)
				row.Decoded = format.ByteCount(result.Metrics.DecodedSize)
			}
			rows = append(rows, row)
		}

		if err := format.Table(os.Stdout, rows,
			[]string{"Frame", "Width", "Height", "Bits", "Chunks", "Fetch", "Decode", "Encoded", "Decoded", "Error"}); err != nil {
			fatal(err)
		}
		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	fetchCmd.Flags().String("url", "", "Frame endpoint URL, e.g. https://host/datastore/D/imageSet/S/getImageFrame")
	fetchCmd.Flags().String("token", "", "Bearer token")
	fetchCmd.Flags().Int("workers", 4, "Number of frames to decode in parallel")
	viper.BindPFlag("url", fetchCmd.Flags().Lookup("url"))
	viper.BindPFlag("token", fetchCmd.Flags().Lookup("token"))
	viper.BindPFlag("workers", fetchCmd.Flags().Lookup("workers"))
	rootCmd.AddCommand(fetchCmd)
}
