// Copyright 2025 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/prometheus/common/model"

	"github.com/parca-dev/propeller/pkg/demangle"
)

// Validate returns an error if the config is not valid.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxStackDepth, validation.Min(0)),
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.DemangleOptions, validation.Each(validation.In(demangleOptions()...))),
		validation.Field(&c.HotAddresses, validation.Each(AddressValid)),
		validation.Field(&c.Timeout, validation.By(nonNegativeDuration)),
	)
}

func demangleOptions() []interface{} {
	res := make([]interface{}, 0, len(demangle.Options))
	for _, o := range demangle.Options {
		res = append(res, o)
	}
	return res
}

func nonNegativeDuration(value interface{}) error {
	d, ok := value.(model.Duration)
	if !ok {
		return errors.New("must be a duration")
	}
	if time.Duration(d) < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

// AddressValid is the validation rule for hot addresses.
var AddressValid = AddressRule{}

// AddressRule implements the validation.Rule interface.
type AddressRule struct{}

// Validate the address string.
func (r AddressRule) Validate(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return errors.New("address is invalid")
	}
	_, err := parseAddress(s)
	return err
}
