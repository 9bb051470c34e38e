package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// renderData merges the --data file and --set values of cmd.
func renderData(cmd *cobra.Command) (map[string]any, error) {
	data := make(map[string]any)
	if file, _ := cmd.Flags().GetString("data"); file != "" {
		var err error
		if data, err = readData(file); err != nil {
			return nil, err
		}
	}
	sets, _ := cmd.Flags().GetStringArray("set")
	for _, kv := range sets {
		if err := setValue(data, kv); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func readData(file string) (map[string]any, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}
	data := make(map[string]any)
	if strings.EqualFold(filepath.Ext(file), ".json") {
		// Numbers stay json.Number so integers reach templates as ints.
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		err = dec.Decode(&data)
	} else {
		err = yaml.Unmarshal(b, &data)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding data %s: %w", file, err)
	}
	return data, nil
}

// setValue stores a KEY=VALUE pair in data. The value is read as a YAML
// scalar, so numbers and booleans keep their type.
func setValue(data map[string]any, kv string) error {
	key, raw, ok := strings.Cut(kv, "=")
	if !ok || key == "" {
		return fmt.Errorf("invalid --set %q (want KEY=VALUE)", kv)
	}
	var val any
	if err := yaml.Unmarshal([]byte(raw), &val); err != nil || val == nil {
		val = raw
	}
	data[key] = val
	return nil
}
