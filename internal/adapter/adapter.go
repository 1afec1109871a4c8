// Package adapter defines the contract between HTTP handlers and the
// dialect implementations that fulfill them.
package adapter

import (
	"context"
	"iter"
)

// Adapter transforms a client request of one dialect into an upstream
// exchange and re-encodes the reply in the same dialect.
//
// Type parameters:
//   - TRequest:  dialect request structure
//   - TResponse: dialect buffered-response structure
//   - TChunk:    dialect streaming chunk
type Adapter[TRequest, TResponse, TChunk any] interface {
	// ProcessRequest performs the exchange and buffers the whole reply
	// into a single response.
	ProcessRequest(ctx context.Context, clientReq TRequest) (*TResponse, error)

	// ProcessStreamingRequest performs the exchange and returns the reply
	// as a chunk iterator. The iterator owns the upstream connection; an
	// early break releases it.
	ProcessStreamingRequest(ctx context.Context, clientReq TRequest) (iter.Seq2[*TChunk, error], error)
}
