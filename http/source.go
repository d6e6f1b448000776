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

package http

import (
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ldkit/ldk"
	"github.com/pkg/errors"
)

// JSONSource implements the ldk.Source interface by listening for HTTP post
// requests and decoding json objects from their bodies. A body may hold any
// number of objects, one after another or in a top level array.
type JSONSource struct {
	addr     string
	listener net.Listener
	server   *http.Server
	tls      *TLSConfig
	stopTLS  func()
	log      ldk.Logger

	records  chan ldk.Record
	done     chan struct{}
	doneOnce sync.Once
	once     sync.Once
	serveWG  sync.WaitGroup
}

// WithAddr is an option for the JSONSource which causes it to bind to the given
// address.
func WithAddr(addr string) JSONSourceOption {
	return func(j *JSONSource) {
		j.addr = addr
	}
}

// WithListener is an option for JSONSource which causes it to use the given
// listener. It will infer the address from the listener.
func WithListener(l net.Listener) JSONSourceOption {
	return func(j *JSONSource) {
		j.listener = l
		j.addr = l.Addr().String()
	}
}

// WithBuffer is an option for JSONSource which modifies the length of the
// channel used to buffer received records (while they are waiting to be
// retrieved by a call to Record).
func WithBuffer(n int) JSONSourceOption {
	return func(j *JSONSource) {
		if n > -1 {
			j.records = make(chan ldk.Record, n)
		}
	}
}

// WithTLS is an option for JSONSource which causes it to serve HTTPS.
func WithTLS(c TLSConfig) JSONSourceOption {
	return func(j *JSONSource) {
		j.tls = &c
	}
}

// WithLogger sets the logger.
func WithLogger(l ldk.Logger) JSONSourceOption {
	return func(j *JSONSource) {
		j.log = l
	}
}

// JSONSourceOption is a functional option type for JSONSource.
type JSONSourceOption func(j *JSONSource)

// NewJSONSource creates a JSONSource - it takes JSONSourceOptions which modify
// its behavior.
func NewJSONSource(opts ...JSONSourceOption) (*JSONSource, error) {
	j := &JSONSource{
		records: make(chan ldk.Record, 3),
		done:    make(chan struct{}),
		log:     ldk.NopLogger{},
	}
	for _, opt := range opts {
		opt(j)
	}

	if j.listener == nil {
		var err error
		j.listener, err = net.Listen("tcp", j.addr)
		if err != nil {
			return nil, errors.Wrap(err, "listening")
		}
	}
	if tl, ok := j.listener.(*net.TCPListener); ok {
		j.listener = tcpKeepAliveListener{tl}
	}
	if j.tls != nil {
		conf, stop, err := j.tls.serverConfig(j.log)
		if err != nil {
			j.listener.Close()
			return nil, errors.Wrap(err, "configuring tls")
		}
		j.stopTLS = stop
		j.listener = tls.NewListener(j.listener, conf)
	}

	j.server = &http.Server{
		Addr:              j.addr,
		Handler:           j,
		ReadHeaderTimeout: 10 * time.Second,
	}
	j.serveWG.Add(1)
	go func() {
		defer j.serveWG.Done()
		err := j.server.Serve(j.listener)
		if err != nil && err != http.ErrServerClosed {
			j.log.Printf("serving: %v", err)
			j.stop()
		}
	}()
	return j, nil
}

// Addr gets the address that the JSONSource is listening on.
func (j *JSONSource) Addr() string {
	if j.listener != nil {
		return j.listener.Addr().String()
	}
	return j.addr
}

// Record returns the next posted json object. It blocks until one arrives
// and returns io.EOF once the source is closed.
func (j *JSONSource) Record() (ldk.Record, error) {
	select {
	case rec := <-j.records:
		return rec, nil
	case <-j.done:
	}
	// drain anything accepted before Close.
	select {
	case rec := <-j.records:
		return rec, nil
	default:
		return nil, io.EOF
	}
}

// Close stops the server. Requests in flight are answered with 503 once
// they can no longer hand over records.
func (j *JSONSource) Close() error {
	var err error
	j.once.Do(func() {
		j.stop()
		err = j.server.Close()
		j.serveWG.Wait()
		if j.stopTLS != nil {
			j.stopTLS()
		}
	})
	return errors.Wrap(err, "closing server")
}

// stop makes Record return io.EOF once buffered records are drained.
func (j *JSONSource) stop() {
	j.doneOnce.Do(func() { close(j.done) })
}

type response struct {
	Accepted int    `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

func respond(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// ServeHTTP implements http.Handler for JSONSource. Objects decoded before
// an error in the body are kept; the response says how many were accepted.
func (j *JSONSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		err := errors.Errorf("unsupported method: %v", r.Method)
		j.log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		w.Header().Set("Allow", http.MethodPost)
		respond(w, http.StatusMethodNotAllowed, response{Error: err.Error()})
		return
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var accepted int
	inArray, err := openArray(dec)
	for err == nil {
		if inArray && !dec.More() {
			_, err = dec.Token()
			inArray = false
			continue
		}
		var rec ldk.Record
		if err = dec.Decode(&rec); err != nil {
			break
		}
		if rec == nil {
			err = errors.New("null is not a json object")
			break
		}
		if !j.send(rec) {
			respond(w, http.StatusServiceUnavailable, response{Accepted: accepted, Error: "source closed"})
			return
		}
		accepted++
	}
	if err == io.EOF {
		respond(w, http.StatusAccepted, response{Accepted: accepted})
		return
	}
	err = errors.Wrap(err, "decoding json")
	j.log.Printf("POST %s: %v", r.URL.Path, err)
	respond(w, http.StatusBadRequest, response{Accepted: accepted, Error: err.Error()})
}

// send hands rec to Record. It reports false once the source is closed.
func (j *JSONSource) send(rec ldk.Record) bool {
	select {
	case <-j.done:
		return false
	default:
	}
	select {
	case j.records <- rec:
		return true
	case <-j.done:
		return false
	}
}

// openArray consumes the opening bracket when the body is a json array.
func openArray(dec *json.Decoder) (bool, error) {
	if !dec.More() {
		// empty body, or one starting with a stray closing delimiter.
		var v interface{}
		return false, dec.Decode(&v)
	}
	// More leaves the decoder at the first non-space byte.
	var peek [1]byte
	if n, _ := dec.Buffered().Read(peek[:]); n == 0 || peek[0] != '[' {
		return false, nil
	}
	_, err := dec.Token()
	return true, err
}

// tcpKeepAliveListener is copied from net/http

type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (c net.Conn, err error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}
