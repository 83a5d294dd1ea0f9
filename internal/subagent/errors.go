package subagent

import "errors"

// ErrUnknownJob is returned by any reader or mutator given a jobId the
// registry has never seen.
var ErrUnknownJob = errors.New("unknown jobId")

// ErrTooManyConcurrentJobs is returned by Spawn when the number of running
// jobs already meets the configured concurrency cap.
var ErrTooManyConcurrentJobs = errors.New("too many concurrent jobs")
