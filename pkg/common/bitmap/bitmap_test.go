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

package bitmap

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestBitmap(t *testing.T) {
	Convey("bitmap add/contains", t, func() {
		bm := New(0)
		So(bm.IsEmpty(), ShouldBeTrue)

		bm.Add(3)
		bm.Add(64)
		bm.Add(130)
		So(bm.Contains(3), ShouldBeTrue)
		So(bm.Contains(64), ShouldBeTrue)
		So(bm.Contains(65), ShouldBeFalse)
		So(bm.Contains(10000), ShouldBeFalse)
		So(bm.Count(), ShouldEqual, 3)
		So(bm.ToArray(), ShouldResemble, []uint64{3, 64, 130})

		bm.Remove(64)
		So(bm.Contains(64), ShouldBeFalse)
		So(bm.Count(), ShouldEqual, 2)
	})

	Convey("bitmap or/clone/clear", t, func() {
		a := New(0)
		a.AddMany([]uint64{1, 2})
		b := New(0)
		b.Add(200)

		a.Or(b)
		So(a.ToArray(), ShouldResemble, []uint64{1, 2, 200})

		c := a.Clone()
		a.Clear()
		So(a.IsEmpty(), ShouldBeTrue)
		So(c.Count(), ShouldEqual, 3)
	})
}
