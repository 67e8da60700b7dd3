package core

// WaitTime bounds a single message's work, in seconds.
const WaitTime = 20

type WorkerParams struct {
	WorkerName string
	Prefetch   int
}
