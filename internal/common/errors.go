// Package common defines shared sentinel errors used across the mailpeek
// components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// ErrNoCredential indicates that no stored session exists. The caller
	// must instruct the user to authenticate via /login.
	ErrNoCredential = errors.New("no stored credential")

	// ErrAuthExpired indicates that the stored refresh token is no longer
	// valid; the user must re-authenticate. Distinct from transient
	// transport errors.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrUpstream indicates a transient failure of the email provider or
	// the completion provider.
	ErrUpstream = errors.New("upstream provider error")

	// ErrStorage indicates the database is unreachable or a write failed.
	ErrStorage = errors.New("storage error")
)
