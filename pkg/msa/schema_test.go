// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package msa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSchemaCatalogAgreesWithCompiledRowSizes(t *testing.T) {
	assert.NoError(t, ValidateSchemaCatalog())
}

func TestSchemaVersionTotalBytesSumsFieldWidths(t *testing.T) {
	v := schemaVersion{Fields: []schemaField{{Bytes: 16}, {Bytes: 80}, {Bytes: 8}}}
	assert.Equal(t, 104, v.totalBytes())
}
