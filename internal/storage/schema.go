/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema/hymnbook.schema.json
var manifestSchemaJSON []byte

// ManifestSchema returns the embedded JSON Schema for book.yaml manifests.
func ManifestSchema() []byte {
	out := make([]byte, len(manifestSchemaJSON))
	copy(out, manifestSchemaJSON)
	return out
}

// ValidateManifest checks YAML manifest bytes against the embedded schema.
// The YAML document is re-encoded as JSON before validation. All violations
// are collected into a single error, one line per offending field.
func ValidateManifest(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse manifest yaml: %w", err)
	}
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert manifest to json: %w", err)
	}

	schemaLoader := gojsonschema.NewBytesLoader(manifestSchemaJSON)
	docLoader := gojsonschema.NewBytesLoader(jsonBytes)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validate: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("manifest does not conform to schema:")
	for _, e := range result.Errors() {
		sb.WriteString(fmt.Sprintf("\n  %s: %s", e.Field(), e.Description()))
	}
	return fmt.Errorf("%s", sb.String())
}

// ValidateManifestFile reads a manifest from disk and validates it.
func ValidateManifestFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	return ValidateManifest(data)
}
