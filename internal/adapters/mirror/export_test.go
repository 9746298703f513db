package mirror

// ParseS3URL exposes parseS3URL for testing.
func ParseS3URL(rawURL string) (string, string, error) {
	return parseS3URL(rawURL)
}
