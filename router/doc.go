// Package router answers questions from several knowledge sources at once.
//
// A query is split by a classifier into per-source sub-questions. One tool
// calling agent per source answers its sub-question, all of them concurrently,
// and a final model call merges their answers:
//
//	r, err := router.New(model)
//	answer, err := r.Ask(ctx, "How do we rotate the API keys?")
//
// The sources are GitHub, Notion and Slack, backed by the canned tools of the
// tool package.
package router
