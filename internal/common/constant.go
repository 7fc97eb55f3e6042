package common

// SessionTokenHeaderName is the HTTP header carrying the signed upload
// session token on upload and delete requests.
const SessionTokenHeaderName = "X-Upload-Session"

// AnonymousKey is the rate-limit key used when a submitter left no email.
const AnonymousKey = "anonymous"
