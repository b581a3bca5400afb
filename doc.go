// Package concord is a client for a real-time chat service's gateway
// protocol: a persistent, zlib-compressed websocket connection paired
// with a REST control plane, an in-memory object cache and a
// role/overwrite permission engine.
//
// A Client owns one gateway session and one cache. Commands
// (SendMessage, FetchMessagesBefore, ...) may be issued from any
// goroutine; domain events and cache reads belong to the client's owner
// context: subscribe with Subscribe, or run ad-hoc reads with Do.
package concord
