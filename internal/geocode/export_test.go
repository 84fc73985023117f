package geocode

// SetBaseURLForTesting points c at an httptest.Server instead of the real
// Google Maps API host.
func SetBaseURLForTesting(c *Client, baseURL string) {
	c.baseURL = baseURL
}
