// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/erigontech/dirstore/internal/direntry"
	"github.com/erigontech/dirstore/internal/dirname"
)

// entryLine is the one external input format this command understands:
// newline-delimited JSON, one object per entry. Parsing/encoding the
// directory's real wire format (§6, "external entry parser/serializer")
// is out of scope for the core; this is just enough to drive load and
// reindex from a file on disk.
type entryLine struct {
	Name          string          `json:"name"`
	CanonicalName string          `json:"canonical_name"`
	Attrs         []entryLineAttr `json:"attrs"`
}

type entryLineAttr struct {
	Type   string   `json:"type"`
	Values []string `json:"values"`
}

// readEntries streams entryLine JSON objects from r and hands each one,
// converted to a *direntry.Entry, to yield. Reading stops at the first
// yield error or the first malformed line.
func readEntries(r io.Reader, yield func(*direntry.Entry) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var el entryLine
		if err := json.Unmarshal(line, &el); err != nil {
			return fmt.Errorf("entryio: line %d: %w", lineNo, err)
		}

		attrs := make([]direntry.Attribute, 0, len(el.Attrs))
		for _, a := range el.Attrs {
			values := make([][]byte, 0, len(a.Values))
			for _, v := range a.Values {
				values = append(values, []byte(v))
			}
			attrs = append(attrs, direntry.Attribute{Type: a.Type, Values: values})
		}

		e := &direntry.Entry{
			Name:          el.Name,
			CanonicalName: dirname.Name(el.CanonicalName),
			Attrs:         attrs,
		}
		if err := yield(e); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("entryio: scan: %w", err)
	}
	return nil
}
