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
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"sync"

	"github.com/Shopify/sarama"
	"github.com/elodina/go-avro"
	"github.com/ldkit/ldk"
	"github.com/pkg/errors"
)

// Message value encodings.
const (
	TypeJSON = "json"
	TypeAvro = "avro"
)

// Source implements the ldk.Source interface using kafka as a data source.
// Values are either json objects or Avro records in the Confluent wire
// format, whose schemas are fetched from a schema registry.
type Source struct {
	Hosts       []string
	Topics      []string
	Group       string
	Type        string
	RegistryURL string
	MaxMsgs     int
	Log         ldk.Logger

	numMsgs  int
	mu       sync.Mutex
	consumer io.Closer
	marker   offsetMarker
	messages <-chan *sarama.ConsumerMessage

	lock  sync.RWMutex
	cache map[int32]avro.Schema
	get   func(url string) (*http.Response, error)
}

type offsetMarker interface {
	MarkOffset(msg *sarama.ConsumerMessage, metadata string)
}

// NewSource gets a new Source
func NewSource() *Source {
	return &Source{
		Hosts:  []string{"localhost:9092"},
		Topics: []string{"test"},
		Group:  "group0",
		Type:   TypeJSON,
		Log:    ldk.NopLogger{},
		cache:  make(map[int32]avro.Schema),
		get:    http.Get,
	}
}

// Record returns the value of the next kafka message. A message which can't
// be decoded is an error for that record only. Once the consumer is closed,
// or MaxMsgs messages have been read, Record returns io.EOF.
func (s *Source) Record() (ldk.Record, error) {
	s.mu.Lock()
	if s.MaxMsgs > 0 {
		s.numMsgs++
		if s.numMsgs > s.MaxMsgs {
			s.mu.Unlock()
			return nil, io.EOF
		}
	}
	s.mu.Unlock()
	msg, ok := <-s.messages
	if !ok {
		return nil, io.EOF
	}
	// the offset is marked even when decoding fails, the failure goes to
	// the dead letter rather than being redelivered.
	defer s.marker.MarkOffset(msg, "")
	var rec ldk.Record
	var err error
	switch s.Type {
	case TypeJSON:
		rec, err = decodeJSON(msg.Value)
	case TypeAvro:
		rec, err = s.decodeAvroValueWithSchemaRegistry(msg.Value)
	default:
		return nil, errors.Errorf("unsupported kafka message type: '%v'", s.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "message %s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	return rec, nil
}

// Close closes the underlying kafka consumer.
func (s *Source) Close() error {
	if s.consumer == nil {
		return nil
	}
	err := s.consumer.Close()
	return errors.Wrap(err, "closing kafka consumer")
}

func decodeJSON(val []byte) (ldk.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(val))
	dec.UseNumber()
	var rec ldk.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, errors.Wrap(err, "unmarshaling json")
	}
	if rec == nil {
		return nil, errors.New("message is not a json object")
	}
	return rec, nil
}

func (s *Source) decodeAvroValueWithSchemaRegistry(val []byte) (ldk.Record, error) {
	if len(val) <= 6 || val[0] != 0 {
		return nil, errors.Errorf("unexpected magic byte or length in avro kafka value, should be 0x00, but got 0x%.8x", val)
	}
	id := int32(binary.BigEndian.Uint32(val[1:]))
	codec, err := s.getCodec(id)
	if err != nil {
		return nil, errors.Wrap(err, "getting avro codec")
	}
	ret, err := avroDecode(codec, val[5:])
	if err != nil {
		return nil, errors.Wrap(err, "decoding avro record")
	}
	return ldk.Record(normalize(ret).(map[string]interface{})), nil
}

// The Schema type is an object produced by the schema registry.
type Schema struct {
	Schema  string `json:"schema"`  // The actual AVRO schema
	Subject string `json:"subject"` // Subject where the schema is registered for
	Version int    `json:"version"` // Version within this subject
	ID      int    `json:"id"`      // Registry's unique id
}

func (s *Source) registryURL(id int32) string {
	base := strings.TrimSuffix(s.RegistryURL, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return fmt.Sprintf("%s/schemas/ids/%d", base, id)
}

func (s *Source) getCodec(id int32) (rschema avro.Schema, rerr error) {
	s.lock.RLock()
	if codec, ok := s.cache[id]; ok {
		s.lock.RUnlock()
		return codec, nil
	}
	s.lock.RUnlock()
	s.lock.Lock()
	defer s.lock.Unlock()
	if codec, ok := s.cache[id]; ok {
		return codec, nil
	}
	r, err := s.get(s.registryURL(id))
	if err != nil {
		return nil, errors.Wrap(err, "getting schema from registry")
	}
	defer func() {
		if err := r.Body.Close(); err != nil && rerr == nil {
			rerr = errors.Wrap(err, "closing registry response")
		}
	}()
	if r.StatusCode >= 300 {
		bod, err := ioutil.ReadAll(r.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get schema, code: %d, no body", r.StatusCode)
		}
		return nil, errors.Errorf("failed to get schema, code: %d, resp: %s", r.StatusCode, bytes.TrimSpace(bod))
	}
	schema := &Schema{}
	if err := json.NewDecoder(r.Body).Decode(schema); err != nil {
		return nil, errors.Wrap(err, "decoding schema from registry")
	}
	codec, err := avro.ParseSchema(schema.Schema)
	if err != nil {
		return nil, errors.Wrap(err, "parsing schema")
	}
	if codec.Type() != avro.Record {
		return nil, errors.Errorf("schema %d is not a record schema", id)
	}
	s.cache[id] = codec
	return codec, nil
}

func avroDecode(codec avro.Schema, data []byte) (map[string]interface{}, error) {
	reader := avro.NewGenericDatumReader()
	// SetSchema must be called before calling Read
	reader.SetSchema(codec)
	decoder := avro.NewBinaryDecoder(data)
	decodedRecord := avro.NewGenericRecord(codec)
	if err := reader.Read(decodedRecord, decoder); err != nil {
		return nil, errors.Wrap(err, "reading generic datum")
	}
	return decodedRecord.Map(), nil
}

// normalize turns decoded Avro values into the kinds records hold. Bytes
// and enum symbols become strings.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case map[string]interface{}:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []interface{}:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	case *avro.GenericRecord:
		return normalize(t.Map())
	case interface{ Get() string }:
		return t.Get()
	}
	return v
}
