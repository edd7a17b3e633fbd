// Package server implements the mailpeek HTTP API.
//
// The surface is deliberately small: /login starts the Google OAuth
// flow, /oauth2callback completes it and persists the encrypted
// credential, and /emails returns recently received messages annotated
// with a category and priority. Health probes and a dedicated metrics
// listener round out the operational endpoints.
//
// Error responses follow one mapping everywhere: a missing or expired
// credential is 401, a Gmail failure is 502, and a storage failure is
// 503. Classification failures never surface as errors; affected
// messages carry the fallback annotation instead.
package server
