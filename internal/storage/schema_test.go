/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"strings"
	"testing"
)

func TestManifestConformsToSchema(t *testing.T) {
	root := t.TempDir()
	bh, err := InitBook(root, testBook("Schema Test"))
	if err != nil {
		t.Fatalf("InitBook error: %v", err)
	}

	if err := ValidateManifestFile(bh.ManifestPath); err != nil {
		t.Fatalf("expected written manifest to conform, got: %v", err)
	}
}

func TestValidateManifestRejectsViolations(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing hymns",
			doc:  "hymn_book:\n  name: Empty Book\n",
			want: "hymns",
		},
		{
			name: "bad repetitions token",
			doc: `hymn_book:
  name: Bad Repeats
  hymns:
    - number: 1
      title: Primeiro
      text: linha
      repetitions: "x-3"
`,
			want: "repetitions",
		},
		{
			name: "zero hymn number",
			doc: `hymn_book:
  name: Bad Number
  hymns:
    - number: 0
      title: Primeiro
      text: linha
`,
			want: "number",
		},
		{
			name: "unknown field",
			doc: `hymn_book:
  name: Stray Field
  chapters: 4
  hymns:
    - number: 1
      title: Primeiro
      text: linha
`,
			want: "chapters",
		},
	}
	for _, tc := range cases {
		err := ValidateManifest([]byte(tc.doc))
		if err == nil {
			t.Fatalf("%s: expected violation, got nil", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error to mention %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestValidateManifestRejectsNonYAML(t *testing.T) {
	if err := ValidateManifest([]byte(":: not yaml {")); err == nil {
		t.Fatalf("expected parse error")
	}
}
