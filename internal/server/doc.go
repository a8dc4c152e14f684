// Package server implements the Xalvion realtime engine and its HTTP surface.
//
// The Hub owns the connection registry, presence store and ephemeral server
// membership; its router methods fan events out to a server's or channel's
// members, and Dispatch applies inbound client frames. The REST handlers
// persist through a Store and push their events through the same Hub.
package server
