// Package client is the Go SDK for the flag evaluation API.
//
// A Client authenticates with an environment API key, evaluates flags over
// HTTP, and keeps a short-lived local cache of decisions so hot flags cost
// no network round trip. Network errors and server failures are retried
// with exponential backoff; when retries are exhausted the client falls
// back to a caller-supplied default instead of failing the application.
//
//	c, err := client.New("ffk_production_...", client.WithBaseURL("https://flags.example.com"))
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	if c.IsEnabled(ctx, "dark_mode", userID, false) {
//		// render the dark theme
//	}
package client
