// Package api exposes the wallet session to local clients over HTTP: REST
// endpoints for the session, networks and activity journal, plus a
// websocket stream that pushes every session snapshot.
package api
