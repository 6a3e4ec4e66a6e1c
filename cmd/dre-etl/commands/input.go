package commands

import (
	"fmt"
	"os"

	"dre-etl/internal/diploma"

	"github.com/titanous/json5"
)

// readInputs loads a json5 array of {code, version} objects.
func readInputs(path string) ([]diploma.Input, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var inputs []diploma.Input
	err = json5.Unmarshal(contents, &inputs)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return inputs, nil
}

// collectInputs joins the diplomas of the input file (if any) with the ones given as
// positional arguments, which all share the same version.
func collectInputs(inputPath string, codes []string, version string) ([]diploma.Input, error) {
	var inputs []diploma.Input
	if inputPath != "" {
		fromFile, err := readInputs(inputPath)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, fromFile...)
	}
	for _, code := range codes {
		inputs = append(inputs, diploma.Input{Code: code, Version: version})
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no diplomas given, pass codes as arguments or --input")
	}
	return inputs, nil
}
