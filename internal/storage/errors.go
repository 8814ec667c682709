package storage

import (
	"fmt"

	"github.com/agentbroker/broker/internal/apierr"
)

// errNotFound builds the tagged NotFound error every backend returns
// from Get for a missing session_id.
func errNotFound(id string) error {
	return apierr.New(apierr.KindNotFound, fmt.Sprintf("session %q not found", id))
}

// wrapUnavailable tags a transport-level failure (connection refused,
// timeout, broken pipe) as retryable, per spec.md's StorageUnavailable
// contract.
func wrapUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return apierr.Wrap(apierr.KindStorageUnavailable, op, err)
}

// wrapBroken tags a schema/contract-level failure discovered at
// startup as fatal.
func wrapBroken(op string, err error) error {
	if err == nil {
		return nil
	}
	return apierr.Wrap(apierr.KindStorageBroken, op, err)
}
