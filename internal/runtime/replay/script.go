// Package replay implements the agent runtime by playing back a recorded
// script of steps. It drives `cua run --replay` and end-to-end tests.
package replay

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/agent"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Format is the encoding of a script file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Step is one recorded iteration. Fail makes the step return an error
// instead of an output, with FailStatus exposed as its status code.
type Step struct {
	agent.StepOutput `yaml:",inline"`
	Fail             string `json:"fail,omitempty" yaml:"fail,omitempty"`
	FailStatus       int    `json:"fail_status,omitempty" yaml:"fail_status,omitempty"`
}

// Script is an ordered list of steps.
type Script struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Parse decodes a script and validates every step status.
func Parse(data []byte, format Format) (*Script, error) {
	var s Script
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &s)
	case FormatYAML, "":
		err = yaml.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("unsupported replay format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode replay script: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadScript reads a script file. Files ending in .json are decoded as JSON,
// everything else as YAML.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay script: %w", err)
	}
	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = FormatJSON
	}
	return Parse(data, format)
}

func (s *Script) validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("replay script has no steps")
	}
	for i, st := range s.Steps {
		if st.Fail != "" {
			continue
		}
		switch st.Status {
		case schemas.StatusRunning, schemas.StatusDone, schemas.StatusCallUser, schemas.StatusError:
		case "":
			s.Steps[i].Status = schemas.StatusRunning
		default:
			return fmt.Errorf("replay step %d: unsupported status %q", i, st.Status)
		}
		for j, e := range st.Conversations {
			if e.Role != schemas.RoleHuman && e.Role != schemas.RoleAgent {
				return fmt.Errorf("replay step %d entry %d: unknown role %q", i, j, e.Role)
			}
		}
	}
	return nil
}
