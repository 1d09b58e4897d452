package queue

import "github.com/MaanVader/Chack/handler"

// requestID and requestType lift envelope fields into transport attributes
// so consumers can route without decoding the body.

func requestID(body interface{}) (string, bool) {
	if req, ok := body.(handler.Request); ok && req.ID != "" {
		return req.ID, true
	}
	return "", false
}

func requestType(body interface{}) (string, bool) {
	if req, ok := body.(handler.Request); ok && req.Type != "" {
		return req.Type, true
	}
	return "", false
}
