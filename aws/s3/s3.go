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

package s3

import (
	"io"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/csv"
	"github.com/pkg/errors"
)

// RawSource yields the objects of an S3 bucket in key order. It is both an
// ldk.RawSource and a file.Lister, so it can be fed to json.NewSourceFromRawSource
// or to file.NewSource to read csv as well as json objects.
type RawSource struct {
	bucket string
	prefix string

	s3      s3iface.S3API
	objects []*s3.Object
	objIdx  *uint64
}

// NewRawSource lists the objects under prefix in bucket.
func NewRawSource(region, bucket, prefix string) (*RawSource, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region)},
	)
	if err != nil {
		return nil, errors.Wrap(err, "getting new session")
	}
	return NewRawSourceWithClient(s3.New(sess), bucket, prefix)
}

// NewRawSourceWithClient is NewRawSource with an existing client.
func NewRawSourceWithClient(client s3iface.S3API, bucket, prefix string) (*RawSource, error) {
	if bucket == "" {
		return nil, errors.New("no bucket given")
	}
	idx := uint64(0)
	rs := &RawSource{
		bucket: bucket,
		prefix: prefix,
		s3:     client,
		objIdx: &idx,
	}
	err := rs.s3.ListObjectsPages(&s3.ListObjectsInput{Bucket: aws.String(rs.bucket), Prefix: aws.String(rs.prefix)},
		func(page *s3.ListObjectsOutput, lastPage bool) bool {
			for _, obj := range page.Contents {
				// "directory" placeholders
				if strings.HasSuffix(aws.StringValue(obj.Key), "/") {
					continue
				}
				rs.objects = append(rs.objects, obj)
			}
			return true
		})
	if err != nil {
		return nil, errors.Wrap(err, "listing objects")
	}
	sort.Slice(rs.objects, func(i, j int) bool {
		return aws.StringValue(rs.objects[i].Key) < aws.StringValue(rs.objects[j].Key)
	})
	return rs, nil
}

// Len returns the number of objects listed.
func (rs *RawSource) Len() int { return len(rs.objects) }

type objReader struct {
	name string
	size int64
	body io.ReadCloser
}

func (o *objReader) Read(buf []byte) (n int, err error) {
	return o.body.Read(buf)
}

func (o *objReader) Close() error {
	return o.body.Close()
}

func (o *objReader) Name() string {
	return o.name
}

func (o *objReader) Meta() map[string]interface{} {
	return map[string]interface{}{"size": o.size}
}

func (rs *RawSource) next() (*s3.Object, bool) {
	idx := atomic.AddUint64(rs.objIdx, 1) - 1
	if int(idx) >= len(rs.objects) {
		return nil, false
	}
	return rs.objects[idx], true
}

func (rs *RawSource) open(obj *s3.Object) (*objReader, error) {
	key := aws.StringValue(obj.Key)
	result, err := rs.s3.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(rs.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %v", key)
	}
	return &objReader{name: key, size: aws.Int64Value(obj.Size), body: result.Body}, nil
}

// NextReader implements ldk.RawSource.
func (rs *RawSource) NextReader() (ldk.NamedReadCloser, error) {
	obj, ok := rs.next()
	if !ok {
		return nil, io.EOF
	}
	return rs.open(obj)
}

// NextObject implements file.Lister.
func (rs *RawSource) NextObject() (csv.OpenStringer, bool) {
	obj, ok := rs.next()
	if !ok {
		return nil, false
	}
	return &object{rs: rs, obj: obj}, true
}

type object struct {
	rs  *RawSource
	obj *s3.Object
}

func (o *object) Open() (io.ReadCloser, error) { return o.rs.open(o.obj) }

func (o *object) String() string {
	return "s3://" + o.rs.bucket + "/" + aws.StringValue(o.obj.Key)
}
