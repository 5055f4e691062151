// Package session serializes work on a thread.
//
// Manager hands out one lock per thread id, so a run and a resume of the same
// thread never overlap, while different threads proceed independently. A
// distributed Locker (RedisLocker) extends the guarantee across processes that
// share one checkpoint store.
package session
