// Package auth validates request tokens for the lighting core API.
//
// Tokens are HS256 JWTs carrying a subject and a role. Permissions are a
// static role mapping with no database lookup: users read and operate
// lights, admins also sync, commission and decommission devices, and
// owners additionally manage adapter credentials. Token issuance lives
// with the identity provider; GenerateAccessToken exists for service
// accounts and tests.
package auth
