// Copyright 2025 gorse Project Authors
//
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

package dataset

// IdDict maps string ids to dense indices in order of first appearance.
type IdDict struct {
	si map[string]int
	is []string
}

func NewIdDict() *IdDict {
	return &IdDict{si: map[string]int{}}
}

func (d *IdDict) Count() int {
	return len(d.is)
}

// Id returns the index of s, inserting it if absent.
func (d *IdDict) Id(s string) int {
	if y, ok := d.si[s]; ok {
		return y
	}
	y := len(d.is)
	d.si[s] = y
	d.is = append(d.is, s)
	return y
}

// Index looks up s without inserting it.
func (d *IdDict) Index(s string) (int, bool) {
	y, ok := d.si[s]
	return y, ok
}
