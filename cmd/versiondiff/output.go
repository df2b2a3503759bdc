// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/trackchanges/services/versiondiff/codec"
)

// writeJSON writes v as indented JSON to terminals and compact JSON
// otherwise, followed by a newline.
func writeJSON(w io.Writer, v any) error {
	var (
		data []byte
		err  error
	)
	if isTerminal(w) {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// readUpdate reads an update from path, or stdin for "-". Text-encoded
// input is decoded when encoded is set.
func readUpdate(stdin io.Reader, path string, encoded bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !encoded {
		return data, nil
	}
	update, err := codec.Decode(string(bytes.TrimSpace(data)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return update, nil
}
