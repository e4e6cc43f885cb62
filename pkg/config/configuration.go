// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"

	"github.com/BurntSushi/toml"

	"github.com/matrixorigin/blockjoin/pkg/common/moerr"
	"github.com/matrixorigin/blockjoin/pkg/logutil"
)

// JoinParameters carries everything the join policy can be tuned with. A
// zero value is filled in by SetDefaultValues.
type JoinParameters struct {
	// bytes budget per side during bootstrap. default: 64MB
	MaxInitiallyFetchedData uint64 `toml:"maxInitiallyFetchedData"`

	// below this many tuples on the smaller side the monolithic hash join
	// wins over radix partitioning. default: 100000
	GraceMinTuples uint64 `toml:"graceMinTuples"`

	// payload width from which payload indirection is considered. default: 64
	PayloadIndirectionBytes uint64 `toml:"payloadIndirectionBytes"`

	// duplicate multiplicity from which payload indirection is considered.
	// default: 4
	PayloadIndirectionMultiplicity uint64 `toml:"payloadIndirectionMultiplicity"`

	Log logutil.LogConfig `toml:"log"`
}

const (
	defaultMaxInitiallyFetchedData        = 64 << 20
	defaultGraceMinTuples                 = 100000
	defaultPayloadIndirectionBytes        = 64
	defaultPayloadIndirectionMultiplicity = 4
)

func (p *JoinParameters) SetDefaultValues() {
	if p.MaxInitiallyFetchedData == 0 {
		p.MaxInitiallyFetchedData = defaultMaxInitiallyFetchedData
	}
	if p.GraceMinTuples == 0 {
		p.GraceMinTuples = defaultGraceMinTuples
	}
	if p.PayloadIndirectionBytes == 0 {
		p.PayloadIndirectionBytes = defaultPayloadIndirectionBytes
	}
	if p.PayloadIndirectionMultiplicity == 0 {
		p.PayloadIndirectionMultiplicity = defaultPayloadIndirectionMultiplicity
	}
	if p.Log.Level == "" {
		p.Log.Level = "info"
	}
	if p.Log.Format == "" {
		p.Log.Format = "console"
	}
}

// LoadJoinParameters parses the toml file at path on top of the defaults.
func LoadJoinParameters(ctx context.Context, path string) (*JoinParameters, error) {
	params := new(JoinParameters)
	if path != "" {
		if _, err := toml.DecodeFile(path, params); err != nil {
			return nil, moerr.NewBadConfig(ctx, "parse %s: %v", path, err)
		}
	}
	params.SetDefaultValues()
	return params, nil
}
