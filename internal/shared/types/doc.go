// Package types holds the wire types shared by handlers and middleware.
//
// Errors are returned as JSON:API error objects:
//
//	{"errors":[{"status":"404","title":"Not Found","detail":"Route does not exist!"}]}
//
// status is the code as a string, title is the canonical reason phrase. id,
// when present, is the trace id of the failing request.
package types
