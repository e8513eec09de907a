package rpcerr

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced to callers. Individual endpoint failures are
// absorbed into retries and cooldowns; only exhaustion of all viable
// options is reported, as one of these.
var (
	// ErrNoAvailableRpcs is returned when the candidate pool for a network is empty.
	ErrNoAvailableRpcs = errors.New("no available rpcs")

	// ErrAllEndpointsFailed is returned when every retry pass over every
	// endpoint was exhausted without a single success.
	ErrAllEndpointsFailed = errors.New("all endpoints failed")

	// ErrTimeout is returned when a bounded wait elapsed.
	ErrTimeout = errors.New("request timed out")

	// ErrConsensusFailure is returned when providers did not agree at the
	// required quorum.
	ErrConsensusFailure = errors.New("consensus failure")

	// ErrSerialization is returned when an agreed-upon value could not be
	// decoded into the caller's expected type.
	ErrSerialization = errors.New("serialization error")

	// ErrJSONRPC is returned when an endpoint answered with a non-success
	// HTTP status or a broken JSON-RPC envelope.
	ErrJSONRPC = errors.New("json-rpc error")
)

// ConsensusError carries the leading-but-insufficient vote key of a failed
// consensus round. It unwraps to ErrConsensusFailure so callers can match
// with errors.Is.
type ConsensusError struct {
	MostCommon string
	BFT        bool
}

func (e *ConsensusError) Error() string {
	if e.BFT {
		return fmt.Sprintf("bft consensus failure: %s", e.MostCommon)
	}
	return fmt.Sprintf("consensus failure: %s", e.MostCommon)
}

func (e *ConsensusError) Unwrap() error { return ErrConsensusFailure }
