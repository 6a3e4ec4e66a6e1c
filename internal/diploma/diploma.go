package diploma

import (
	"errors"
	"fmt"

	"dre-etl/internal/components/chrono"
)

// Metadata identifies one diploma to acquire. The zero value is not valid, use NewMetadata.
type Metadata struct {
	code    string
	version string
}

// NewMetadata validates and normalizes the code and version, no navigation should ever
// happen for input rejected here.
func NewMetadata(rawCode, version string, clock chrono.API) (Metadata, error) {
	code, err := NormalizeCode(rawCode, clock)
	if err != nil {
		return Metadata{}, err
	}
	version, err = ValidateVersion(version)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{code: code, version: version}, nil
}

// Code is the normalized code, ex. "Decreto-Lei n.º 10/2024".
func (m Metadata) Code() string {
	return m.code
}

// Version is the consolidated version date, empty for the current text.
func (m Metadata) Version() string {
	return m.version
}

func (m Metadata) HasVersion() bool {
	return m.version != ""
}

func (m Metadata) String() string {
	if m.version == "" {
		return m.code
	}
	return fmt.Sprintf("%s@%s", m.code, m.version)
}

// Input is the unvalidated shape of a diploma in input lists.
type Input struct {
	Code    string `json:"code"`
	Version string `json:"version"`
}

// FromInputs validates every input, it reports all invalid items at once rather than
// stopping at the first one.
func FromInputs(inputs []Input, clock chrono.API) ([]Metadata, error) {
	out := make([]Metadata, 0, len(inputs))
	var errs []error
	for i, in := range inputs {
		md, err := NewMetadata(in.Code, in.Version, clock)
		if err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		out = append(out, md)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
