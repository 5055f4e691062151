// Package server is the HTTP surface of fabflow.
//
// The LangGraph style thread API drives the inspection workflow:
//
//	POST /threads                      create a thread id
//	GET  /threads/{id}/state           latest values and pending nodes
//	GET  /threads/{id}/history         every checkpoint, newest first
//	POST /threads/{id}/runs/stream     run or resume, streamed as server-sent events
//	POST /assistants/search            the single assistant this server hosts
//
// A run body is {"input": ...} for a new request or
// {"command": {"resume": ...}} to answer a pending review. Each node's partial
// update is sent as an "updates" event keyed by node name. A suspension is
// sent as {"__interrupt__": [review request]} and every stream ends with an
// "end" or an "error" event.
//
// The knowledge router and the NCS chatbot are served under /router/query and
// /api, and prometheus metrics under /metrics.
package server
