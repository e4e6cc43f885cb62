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

// join-tool joins two csv files on the given key columns and prints the
// result as csv. All columns are treated as strings; the point of the tool
// is driving the block join operator outside the engine.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/matrixorigin/simdcsv"

	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/config"
	"github.com/matrixorigin/blockjoin/pkg/container/types"
	"github.com/matrixorigin/blockjoin/pkg/container/vector"
	"github.com/matrixorigin/blockjoin/pkg/logutil"
	"github.com/matrixorigin/blockjoin/pkg/sql/colexec/gracejoin"
)

const blockRows = 8192

var (
	leftPath   = flag.String("left", "", "left csv file")
	rightPath  = flag.String("right", "", "right csv file")
	leftKeys   = flag.String("left-keys", "0", "comma separated left key column indexes")
	rightKeys  = flag.String("right-keys", "0", "comma separated right key column indexes")
	dropRight  = flag.Bool("drop-right-keys", true, "drop the right side key columns from the output")
	configPath = flag.String("config", "", "toml file with join parameters")
)

// csvStream feeds a csv file to the operator block by block.
type csvStream struct {
	reader  *simdcsv.Reader
	file    *os.File
	nCols   int
	records [][]string
	done    bool
}

func openCSVStream(path string, nCols int) (*csvStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &csvStream{
		reader: simdcsv.NewReaderWithOptions(f, ',', '#', true, true),
		file:   f,
		nCols:  nCols,
	}, nil
}

func (s *csvStream) WideFetch(ctx context.Context, vecs []*vector.Vector) (gracejoin.FetchStatus, error) {
	if s.done {
		return gracejoin.FetchFinish, nil
	}
	records, cnt, err := s.reader.Read(blockRows, ctx, s.records)
	if err != nil {
		return gracejoin.FetchFinish, err
	}
	s.records = records
	if cnt == 0 {
		s.done = true
		return gracejoin.FetchFinish, nil
	}

	mp := mpool.MustNewZero()
	for col := 0; col < s.nCols; col++ {
		vec := vector.NewVec(types.T_varchar.ToType())
		for row := 0; row < cnt; row++ {
			val := ""
			if col < len(records[row]) {
				val = records[row][col]
			}
			if err := vector.AppendBytes(vec, []byte(val), false, mp); err != nil {
				return gracejoin.FetchFinish, err
			}
		}
		vecs[col] = vec
	}
	vecs[s.nCols] = vector.NewConstFixed(types.T_uint64.ToType(), uint64(cnt), cnt)
	return gracejoin.FetchOk, nil
}

func (s *csvStream) Close() {
	s.file.Close()
}

func countColumns(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	rec, err := r.Read()
	if err != nil {
		return 0, err
	}
	return len(rec), nil
}

func parseKeys(s string) ([]uint32, error) {
	var keys []uint32
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, err
		}
		keys = append(keys, uint32(v))
	}
	return keys, nil
}

func wideTypes(nCols int) []types.Type {
	typs := make([]types.Type, nCols+1)
	for i := 0; i < nCols; i++ {
		typs[i] = types.T_varchar.ToType()
	}
	typs[nCols] = types.T_uint64.ToType()
	return typs
}

func run() error {
	ctx := context.Background()

	params, err := config.LoadJoinParameters(ctx, *configPath)
	if err != nil {
		return err
	}
	logutil.SetupLogger(&params.Log)

	lk, err := parseKeys(*leftKeys)
	if err != nil {
		return err
	}
	rk, err := parseKeys(*rightKeys)
	if err != nil {
		return err
	}

	leftCols, err := countColumns(*leftPath)
	if err != nil {
		return err
	}
	rightCols, err := countColumns(*rightPath)
	if err != nil {
		return err
	}

	left, err := openCSVStream(*leftPath, leftCols)
	if err != nil {
		return err
	}
	defer left.Close()
	right, err := openCSVStream(*rightPath, rightCols)
	if err != nil {
		return err
	}
	defer right.Close()

	var rightDrops []uint32
	if *dropRight {
		rightDrops = rk
	}

	mp := mpool.MustNewZero()
	join, err := gracejoin.NewBlockGraceJoin(ctx,
		left, wideTypes(leftCols),
		right, wideTypes(rightCols),
		gracejoin.JoinKindInner,
		lk, nil, rk, rightDrops,
		false, gracejoin.NewPolicy(params), mp)
	if err != nil {
		return err
	}

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	out := make([]*vector.Vector, join.ResultWidth())
	var rows uint64
	for {
		status, err := join.WideFetch(ctx, out)
		if err != nil {
			return err
		}
		if status == gracejoin.FetchFinish {
			break
		}
		if status != gracejoin.FetchOk {
			continue
		}
		n := int(vector.GetFixedAt[uint64](out[len(out)-1], 0))
		record := make([]string, len(out)-1)
		for row := 0; row < n; row++ {
			for col := 0; col < len(out)-1; col++ {
				record[col] = string(out[col].GetBytesAt(row))
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
		rows += uint64(n)
	}
	logutil.Infof("joined %d rows", rows)
	return nil
}

func main() {
	flag.Parse()
	if *leftPath == "" || *rightPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "join-tool: %v\n", err)
		os.Exit(1)
	}
}
