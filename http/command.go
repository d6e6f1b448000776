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
	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/ingest"
)

// Main holds the config for the http command.
type Main struct {
	ingest.Main           `flag:"!embed"`
	Bind                  string `help:"Listen for post requests on this address."`
	Buffer                int    `help:"Number of posted records held while waiting to be ingested."`
	TLSCertificate        string `help:"Path to certificate file. Serves HTTPS when set."`
	TLSKey                string `help:"Path to certificate key file."`
	TLSCACertificate      string `help:"Path to CA certificate file for verifying clients."`
	TLSClientVerification bool   `help:"Enable verification of client certificates."`
}

// NewMain gets a new Main with default values.
func NewMain() *Main {
	m := &Main{
		Main:   *ingest.NewMain(),
		Bind:   ":12121",
		Buffer: 100,
	}
	m.NewSource = func() (ldk.Source, error) {
		opts := []JSONSourceOption{WithAddr(m.Bind), WithBuffer(m.Buffer), WithLogger(m.Log())}
		if m.TLSCertificate != "" {
			opts = append(opts, WithTLS(TLSConfig{
				CertificatePath:          m.TLSCertificate,
				CertificateKeyPath:       m.TLSKey,
				CACertPath:               m.TLSCACertificate,
				EnableClientVerification: m.TLSClientVerification,
			}))
		}
		src, err := NewJSONSource(opts...)
		if err != nil {
			return nil, err
		}
		m.Log().Printf("listening on %s", src.Addr())
		return src, nil
	}
	return m
}
