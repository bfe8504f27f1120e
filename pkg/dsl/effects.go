package dsl

import (
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/weft/pkg/domain"
	"gopkg.in/yaml.v3"
)

// EffectResolution is one entry of an effect resolution file.
type EffectResolution struct {
	Type    string `yaml:"type" json:"type"`
	Payload any    `yaml:"payload,omitempty" json:"payload,omitempty"`
	Value   any    `yaml:"value,omitempty" json:"value,omitempty"`
	Error   string `yaml:"error,omitempty" json:"error,omitempty"`
}

// Effect returns the effect this entry resolves.
func (r EffectResolution) Effect() *domain.Effect {
	return domain.NewEffect(r.Type, r.Payload)
}

// ParseEffects decodes a YAML or JSON list of effect resolutions.
func ParseEffects(data []byte) ([]EffectResolution, error) {
	var list []EffectResolution
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse effects: %w", err)
	}
	for i, r := range list {
		if r.Type == "" {
			return nil, &NodeError{Path: fmt.Sprintf("effects[%d]", i), Err: fmt.Errorf("%w: effect needs a type", ErrInvalidNode)}
		}
	}
	return list, nil
}

// LoadEffects reads an effect resolution file. A missing file yields no
// resolutions.
func LoadEffects(path string) ([]EffectResolution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read effects: %w", err)
	}
	return ParseEffects(data)
}

// Table builds an effect table from resolutions. Later entries for the same
// effect win.
func Table(list []EffectResolution) (domain.EffectTable, error) {
	t := domain.EffectTable{}
	for i, r := range list {
		e := r.Effect()
		if r.Error != "" {
			t.Reject(e, errors.New(r.Error))
			continue
		}
		res, err := domain.ResultOf(r.Value)
		if err != nil {
			return nil, &NodeError{Path: fmt.Sprintf("effects[%d]", i), Err: err}
		}
		t[e.ID] = res
	}
	return t, nil
}
