// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package msa

import (
	_ "embed"
	"fmt"

	"github.com/stratastor/afdmon/pkg/errors"
	"gopkg.in/yaml.v2"
)

//go:embed schema_versions.yaml
var schemaCatalogYAML []byte

type schemaField struct {
	Name  string `yaml:"name"`
	Bytes int    `yaml:"bytes"`
}

type schemaVersion struct {
	Version int           `yaml:"version"`
	Fields  []schemaField `yaml:"fields"`
}

type schemaCatalog struct {
	Versions []schemaVersion `yaml:"versions"`
}

// totalBytes sums the declared field widths for one catalog version.
func (v schemaVersion) totalBytes() int {
	n := 0
	for _, f := range v.Fields {
		n += f.Bytes
	}
	return n
}

// ValidateSchemaCatalog parses the embedded field-layout catalog and
// cross-checks its declared per-version row size against the
// compiled row-size constants this package actually uses to decode
// and convert rows. A mismatch means codec.go/convert.go were edited
// without updating schema_versions.yaml (or vice versa) and the
// conversion chain can no longer be trusted.
func ValidateSchemaCatalog() error {
	var catalog schemaCatalog
	if err := yaml.Unmarshal(schemaCatalogYAML, &catalog); err != nil {
		return errors.Wrap(err, errors.MsaSchemaMismatch).WithMetadata("stage", "parse")
	}

	compiled := map[int]int{
		0: rowSizeV0,
		1: rowSizeV1,
		2: rowSizeV2,
		3: RowSize,
	}

	seen := map[int]bool{}
	for _, v := range catalog.Versions {
		seen[v.Version] = true
		want, ok := compiled[v.Version]
		if !ok {
			return errors.New(errors.MsaSchemaMismatch, fmt.Sprintf("catalog names unknown version %d", v.Version))
		}
		if got := v.totalBytes(); got != want {
			return errors.New(errors.MsaSchemaMismatch,
				fmt.Sprintf("version %d: catalog declares %d bytes, compiled layout is %d bytes", v.Version, got, want))
		}
	}

	for version := range compiled {
		if !seen[version] {
			return errors.New(errors.MsaSchemaMismatch, fmt.Sprintf("compiled version %d missing from catalog", version))
		}
	}

	return nil
}
