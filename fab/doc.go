// Package fab implements the human-in-the-loop inspection workflow of a
// simulated semiconductor fab.
//
// A request is classified by keywords. General requests are answered by a chat
// model. Fab requests go through a process history lookup and a decision proposer
// that picks one of photo, etch or deposition; the run then suspends at the
// review gate until a reviewer approves, edits or rejects the proposal:
//
//	classify -> chat -> END
//	classify -> history -> propose -> review -> dispatch -> summarize -> END
//	                                   review -> END (reject)
//
// Suspension survives process restarts: the state and the cursor are written to
// a store.CheckpointStore and Service.Resume continues at the review gate without
// running history or propose again.
//
//	svc, _ := fab.NewService(model, checkpoints)
//	res, _ := svc.Start(ctx, id, "LOT12 photo 검사해줘", nil)
//	if res.Suspended() {
//		res, _ = svc.Resume(ctx, id, fab.Verdict{Type: fab.VerdictApprove}, nil)
//	}
package fab
