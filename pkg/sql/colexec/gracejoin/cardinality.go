// Copyright 2022 Matrix Origin
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

package gracejoin

import (
	"encoding/binary"

	"github.com/axiomhq/hyperloglog"
)

// cardinalityEstimator sketches the join cardinality from key hash samples
// of both sides. Sampled rows are spread over hash buckets; the per-bucket
// count products are scaled back to full stream sizes and divided by the
// hyperloglog distinct-key estimate share of the bucket. The result is a
// bootstrap value, it can be far from truth on skewed selectivity.
type cardinalityEstimator struct {
	buckets uint64
}

func newCardinalityEstimator(buckets uint64) *cardinalityEstimator {
	if buckets == 0 {
		buckets = 1
	}
	return &cardinalityEstimator{buckets: buckets}
}

func (e *cardinalityEstimator) Estimate(lTuples uint64, lSamples []uint64, rTuples uint64, rSamples []uint64) uint64 {
	lCounts := make([]uint64, e.buckets)
	rCounts := make([]uint64, e.buckets)

	lSampled := fillBuckets(lCounts, lSamples)
	rSampled := fillBuckets(rCounts, rSamples)
	if lSampled == 0 || rSampled == 0 {
		return 0
	}

	distinct := distinctEstimate(lSamples)
	if d := distinctEstimate(rSamples); d < distinct {
		distinct = d
	}
	perBucket := distinct / e.buckets
	if perBucket == 0 {
		perBucket = 1
	}

	lScale := float64(lTuples) / float64(lSampled)
	rScale := float64(rTuples) / float64(rSampled)

	var estimate float64
	for b := uint64(0); b < e.buckets; b++ {
		if lCounts[b] == 0 || rCounts[b] == 0 {
			continue
		}
		estimate += float64(lCounts[b]) * lScale * float64(rCounts[b]) * rScale / float64(perBucket)
	}
	if estimate < 1 {
		return 1
	}
	return uint64(estimate)
}

// fillBuckets spreads non-zero samples over the count array and reports how
// many samples were used. Zero hashes are the null-key sentinel and never
// join, so they are left out of the sketch.
func fillBuckets(counts []uint64, samples []uint64) uint64 {
	var used uint64
	n := uint64(len(counts))
	for _, h := range samples {
		if h == 0 {
			continue
		}
		counts[h%n]++
		used++
	}
	return used
}

func distinctEstimate(samples []uint64) uint64 {
	sketch := hyperloglog.New14()
	var buf [8]byte
	for _, h := range samples {
		if h == 0 {
			continue
		}
		binary.LittleEndian.PutUint64(buf[:], h)
		sketch.Insert(buf[:])
	}
	d := sketch.Estimate()
	if d == 0 {
		d = 1
	}
	return d
}
