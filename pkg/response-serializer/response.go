// Package serializer converts HTTP responses to and from their stored
// byte form. The stored form is the plain HTTP/1.1 wire representation,
// so stored entries stay readable with standard tools.
package serializer

import (
	"bufio"
	"bytes"
	"net/http"
)

// ResponseToBytes converts a response to a byte slice.
// It returns the HTTP/1.1 representation of the response. The response
// body is consumed in the process and replaced with a fresh reader over
// the serialized copy, so the response stays usable for the caller.
func ResponseToBytes(res *http.Response) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	bts := buf.Bytes()
	clonedRes, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(bts)), res.Request)
	if err != nil {
		return nil, err
	}
	res.Body = clonedRes.Body
	return bts, nil
}

// BytesToResponse converts a stored byte slice back to a http.Response.
// Every call returns a response with its own body reader, so callers can
// read independently of each other and of the stored bytes.
func BytesToResponse(b []byte) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
}
