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

package nulls

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNulls(t *testing.T) {
	Convey("nil receiver behaves as empty", t, func() {
		var nsp *Nulls
		So(nsp.Contains(0), ShouldBeFalse)
		So(nsp.Any(), ShouldBeFalse)
		So(nsp.Count(), ShouldEqual, 0)
	})

	Convey("add and query", t, func() {
		nsp := &Nulls{}
		nsp.Add(1, 5)
		So(nsp.Any(), ShouldBeTrue)
		So(nsp.Contains(1), ShouldBeTrue)
		So(nsp.Contains(2), ShouldBeFalse)
		So(nsp.Count(), ShouldEqual, 2)
		So(nsp.ToArray(), ShouldResemble, []uint64{1, 5})

		clone := nsp.Clone()
		nsp.Reset()
		So(nsp.Any(), ShouldBeFalse)
		So(clone.Count(), ShouldEqual, 2)
	})

	Convey("or", t, func() {
		a := &Nulls{}
		a.Add(0)
		b := &Nulls{}
		b.Add(9)
		r := &Nulls{}
		Or(a, b, r)
		So(r.ToArray(), ShouldResemble, []uint64{0, 9})
	})
}
