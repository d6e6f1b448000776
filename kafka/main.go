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

package kafka

import (
	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/ingest"
	"github.com/pkg/errors"
)

// Main holds the options for ingesting records from Kafka.
type Main struct {
	ingest.Main `flag:"!embed"`
	Hosts       []string `help:"Comma separated list of Kafka hosts and ports"`
	Topics      []string `help:"Comma separated list of Kafka topics"`
	Group       string   `help:"Kafka group"`
	RegistryURL string   `help:"URL of the confluent schema registry. Pass an empty string to use JSON instead of Avro."`
	MaxMsgs     int      `help:"Stop after this many messages. 0 reads until interrupted."`
}

// NewMain returns a new Main.
func NewMain() *Main {
	m := &Main{
		Main:        *ingest.NewMain(),
		Hosts:       []string{"localhost:9092"},
		Topics:      []string{"test"},
		Group:       "group0",
		RegistryURL: "localhost:8081",
	}
	m.NewSource = func() (ldk.Source, error) {
		src := NewSource()
		src.Hosts = m.Hosts
		src.Topics = m.Topics
		src.Group = m.Group
		src.MaxMsgs = m.MaxMsgs
		src.Log = m.Log()
		if m.RegistryURL != "" {
			src.Type = TypeAvro
			src.RegistryURL = m.RegistryURL
		}
		if err := src.Open(); err != nil {
			return nil, errors.Wrap(err, "opening kafka source")
		}
		return src, nil
	}
	return m
}
