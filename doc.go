// Package fabflow is a human-in-the-loop review workflow for simulated
// semiconductor fab inspections.
//
// A request such as "LOT12 photo 패턴 검사해줘" is classified by keyword, the
// LOT's process history is summarized, and a model proposes which process
// (photo, etch or deposition) to inspect. The run then suspends at a review
// gate and is checkpointed. A later request answers the review with approve,
// edit or reject; approved and edited proposals are dispatched to the matching
// inspection agent and the results are summarized.
//
// Packages:
//
//   - graph: the state graph engine, checkpointed runs and interrupts
//   - store: checkpoint stores (memory, file, redis, postgres, sqlite)
//   - fab: the inspection workflow and its Service
//   - server: the HTTP surface, streaming runs over SSE
//   - router: the multi-source knowledge router
//   - rag: document ingestion and the NCS chatbot
//   - cmd/fabflow: the command line
package fabflow
