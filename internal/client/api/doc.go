// Package api is the HTTP client of the intake server. A Session
// implements uploads.Uploader so the upload orchestrator can run against a
// remote server exactly as it runs against an in-process storage gateway.
package api
