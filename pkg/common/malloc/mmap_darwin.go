// Copyright 2022 - 2024 Matrix Origin
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

package malloc

import (
	"golang.org/x/sys/unix"
)

const (
	madv_FREE_REUSABLE = 0x7
	madv_FREE_REUSE    = 0x8
)

func reuseMem(buf []byte) {
	if err := unix.Madvise(buf, madv_FREE_REUSE); err != nil {
		panic(err)
	}
	// reused pages keep their old content on darwin
	clear(buf)
}

func freeMem(buf []byte) {
	if err := unix.Madvise(buf, madv_FREE_REUSABLE); err != nil {
		panic(err)
	}
}
