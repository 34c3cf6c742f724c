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
package format

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/fatih/structs"
)

var headerColor = color.New(color.FgCyan).SprintFunc()

// Table renders the given attributes of each row as an aligned text table
// with a colored header line
func Table(w io.Writer, rows []interface{}, attrs []string) error {
	values := make([][]string, len(rows))
	for i, row := range rows {
		fields := structs.Map(row)
		cells := make([]string, len(attrs))
		for j, attr := range attrs {
			value, ok := fields[attr]
			if !ok {
				return fmt.Errorf("row has no attribute: %s", attr)
			}
			cells[j] = fmt.Sprintf("%v", value)
		}
		values[i] = cells
	}

	widths := make([]int, len(attrs))
	for i, attr := range attrs {
		widths[i] = len(attr)
	}
	for _, cells := range values {
		for i, cell := range cells {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	header := make([]string, len(attrs))
	for i, attr := range attrs {
		header[i] = pad(strings.ToUpper(attr), widths[i])
	}
	if _, err := fmt.Fprintln(w, headerColor(strings.Join(header, "  "))); err != nil {
		return err
	}

	for _, cells := range values {
		for i, cell := range cells {
			cells[i] = pad(cell, widths[i])
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, "  ")); err != nil {
			return err
		}
	}
	return nil
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
