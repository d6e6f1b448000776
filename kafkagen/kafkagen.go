// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package kafkagen

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/bulk"
	"github.com/ldkit/ldk/fake"
	"github.com/pkg/errors"
)

// Main holds the execution state for the kafka generator.
type Main struct {
	Hosts     []string      `help:"Kafka hosts."`
	Topic     string        `help:"Topic to put person records on."`
	Seed      int64         `help:"Random seed for generating data."`
	Num       uint64        `help:"Number of records to generate. 0 means infinity."`
	BatchSize int           `help:"Records sent per batch."`
	Rate      time.Duration `help:"Pause between batches."`
	Backoff   time.Duration `help:"Pause before resending a batch which failed."`

	Log ldk.Logger `flag:"-"`

	// NewUploader is only exported for testing purposes.
	NewUploader func() (bulk.Uploader, error) `flag:"-"`
}

// NewMain returns a new Main.
func NewMain() *Main {
	m := &Main{
		Hosts:     []string{"localhost:9092"},
		Topic:     "people",
		Num:       1000,
		BatchSize: 100,
		Rate:      time.Second,
		Backoff:   time.Second * 10,
		Log:       ldk.StdLogger{Logger: log.New(os.Stderr, "", log.LstdFlags)},
	}
	m.NewUploader = func() (bulk.Uploader, error) {
		return bulk.NewKafkaUploader(m.Hosts, m.Topic)
	}
	return m
}

// Run runs the kafka generator until Num records are sent or the process is
// interrupted.
func (m *Main) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	_, err := m.RunContext(ctx)
	return err
}

// RunContext runs the kafka generator and returns the number of records sent.
func (m *Main) RunContext(ctx context.Context) (uint64, error) {
	if m.BatchSize < 1 {
		return 0, errors.Errorf("batch size must be positive, got %d", m.BatchSize)
	}
	up, err := m.NewUploader()
	if err != nil {
		return 0, errors.Wrap(err, "getting uploader")
	}
	defer up.Close()

	src := fake.NewPersonSource(m.Seed, m.Num)
	var sent uint64
	var ticker *time.Ticker
	if m.Rate > 0 {
		ticker = time.NewTicker(m.Rate)
		defer ticker.Stop()
	}
	for {
		recs, err := ldk.Records(src, m.BatchSize)
		if err != nil && err != io.EOF {
			return sent, errors.Wrap(err, "generating records")
		}
		if len(recs) > 0 {
			items, ierr := toItems(recs)
			if ierr != nil {
				return sent, ierr
			}
			if !m.upload(ctx, up, items) {
				return sent, nil
			}
			sent += uint64(len(recs))
		}
		if err == io.EOF {
			return sent, nil
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return sent, nil
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return sent, nil
		}
	}
}

// upload sends items, backing off and retrying until it succeeds. It returns
// false if ctx is done first.
func (m *Main) upload(ctx context.Context, up bulk.Uploader, items []bulk.Item) bool {
	for {
		err := up.Upload(ctx, items)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		m.Log.Printf("Error sending %d records: '%v', backing off", len(items), err)
		if !sleep(ctx, m.Backoff) {
			return false
		}
	}
}

func toItems(recs []ldk.Record) ([]bulk.Item, error) {
	items := make([]bulk.Item, len(recs))
	for i, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, errors.Wrap(err, "encoding record")
		}
		id, _ := rec["PersonID"].(string)
		items[i] = bulk.Item{ID: id, PartitionKey: id, Data: data}
	}
	return items, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
