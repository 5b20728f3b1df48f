package session

// ShouldRecomputeExpiry reports whether a write must refresh the payload's
// absolute expiry. Without a trigger every write refreshes. With one, the
// refresh happens only inside the trigger window: from trigger seconds
// before the recorded expiry onward. Writes earlier than that reuse the
// stored expiry, so a busy record costs one expiry rewrite per window
// instead of one per request.
func ShouldRecomputeExpiry(now, expires, trigger int64) bool {
	if trigger <= 0 {
		return true
	}
	return now >= expires-trigger
}
