// Package httputil holds the JSON response helpers shared by the API
// handlers, so every endpoint emits the same error envelope.
package httputil
