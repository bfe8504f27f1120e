/*
Package ports defines the driven ports (interfaces) for the weft runtime.

These interfaces decouple the interpreter from the places effect resolutions come
from and are kept in, so the same evaluation can run against an in-memory table,
a Redis-backed store or a remote source.

# Key Interfaces

  - EffectSource: Answers "what did this effect resolve to?" during an evaluation.
  - EffectStore: Persists resolutions (Resolve, Reject, Forget, List).
  - DistributedLocker: Provides distributed locking so that runner replicas do not overlap.
*/
package ports
