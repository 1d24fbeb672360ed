package helper

// TypedValueOf asserts raw to T. A nil raw never matches.
func TypedValueOf[T any](raw any) (res T, ok bool) {
	if raw == nil {
		return res, false
	}
	res, ok = raw.(T)
	return
}
