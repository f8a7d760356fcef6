// Package api implements the HTTP request layer of the lighting core.
//
// This package provides:
//   - REST endpoints over the device reconciler: list, get, set state,
//     sync, commission and decommission
//   - a Server-Sent Events stream and a WebSocket hub carrying bus records
//   - JWT bearer authentication with static role permissions
//   - the middleware stack (request ID, logging, recovery, CORS, body limit)
//
// Handlers are thin: every lighting decision is made by the reconciler, and
// the API only maps its results and errors onto HTTP. WebSocket connections
// authenticate with single-use tickets so tokens never appear in URLs.
package api
