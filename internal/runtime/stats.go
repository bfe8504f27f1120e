package runtime

// Stats counts what the evaluator did. Steps counts coroutine steps, which is the
// work that cache reuse avoids.
type Stats struct {
	Evaluated   uint64 `json:"evaluated"`
	Reused      uint64 `json:"reused"`
	Verified    uint64 `json:"verified"`
	Revalidated uint64 `json:"revalidated"`
	Created     uint64 `json:"created"`
	Superseded  uint64 `json:"superseded"`
	Yields      uint64 `json:"yields"`
	Steps       uint64 `json:"steps"`
}
