// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package stretch

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// Maximum fixed stretch amount of the star stretch
const MaxAmount = 8

// Maximum saturation amount of the star stretch
const MaxSatAmount = 2

// Persisted stretch settings. Fields absent when loading take their default values
type Settings struct {
	TargetMedian        float64 `json:"targetMedian"        yaml:"targetMedian"`
	CurvesBoost         float64 `json:"curvesBoost"         yaml:"curvesBoost"`
	NumIterations       int     `json:"numIterations"       yaml:"numIterations"`
	NormalizeImageRange bool    `json:"normalizeImageRange" yaml:"normalizeImageRange"`
	Amount              float64 `json:"amount"              yaml:"amount"`    // fixed stretch exponent of the star stretch
	SatAmount           float64 `json:"satAmount"           yaml:"satAmount"` // saturation boost of the star stretch
}

func NewSettingsDefault() *Settings {
	return &Settings{
		TargetMedian:        0.25,
		CurvesBoost:         0,
		NumIterations:       1,
		NormalizeImageRange: true,
		Amount:              5,
		SatAmount:           1,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (s *Settings) UnmarshalJSON(data []byte) error {
	type defaults Settings
	def := defaults(*NewSettingsDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*s = Settings(def)
	return nil
}

// Unmarshal the type from YAML with default values for missing entries
func (s *Settings) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type defaults Settings
	def := defaults(*NewSettingsDefault())
	err := unmarshal(&def)
	if err != nil {
		return err
	}
	*s = Settings(def)
	return nil
}

// Checks all fields are within their valid ranges
func (s *Settings) Validate() error {
	if err := s.Params().Validate(); err != nil {
		return err
	}
	if !(s.Amount >= 0 && s.Amount <= MaxAmount) {
		return newInputError("amount %.6g outside [0,%d]", s.Amount, MaxAmount)
	}
	if !(s.SatAmount >= 0 && s.SatAmount <= MaxSatAmount) {
		return newInputError("saturation amount %.6g outside [0,%d]", s.SatAmount, MaxSatAmount)
	}
	return nil
}

// Returns the statistical stretch parameters
func (s *Settings) Params() Params {
	return NewParams(s.TargetMedian, s.CurvesBoost, s.NumIterations, s.NormalizeImageRange)
}

// Returns true if the name selects the YAML format
func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Loads settings from the reader. The format is YAML for names ending in .yaml or .yml, else JSON.
// An empty document yields the defaults
func LoadSettings(r io.Reader, name string) (*Settings, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s := NewSettingsDefault()
	if len(strings.TrimSpace(string(data))) == 0 {
		return s, nil
	}
	if isYAML(name) {
		err = yaml.Unmarshal(data, s)
	} else {
		err = json.Unmarshal(data, s)
	}
	if err != nil {
		return nil, newInputError("settings %s: %s", name, err.Error())
	}
	return s, nil
}

// Saves settings to the writer, in YAML for names ending in .yaml or .yml, else JSON
func (s *Settings) Save(w io.Writer, name string) error {
	var data []byte
	var err error
	if isYAML(name) {
		data, err = yaml.Marshal(s)
	} else {
		data, err = json.MarshalIndent(s, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
