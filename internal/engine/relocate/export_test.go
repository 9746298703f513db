package relocate

// LooksLikeText exposes looksLikeText for testing.
func LooksLikeText(head []byte) bool {
	return looksLikeText(head)
}
