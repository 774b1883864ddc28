// Package gateway adapts Kong's authorization callback to the check
// pipeline. Kong sends a differently shaped envelope and expects a boolean
// verdict; requests with no identifiable consumer or no matching route are
// denied without consulting the engine.
package gateway

// KongHTTP is the request slice of Kong's callback envelope. Kong sends far
// more; only the method and path matter here.
type KongHTTP struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

type KongRequest struct {
	HTTP KongHTTP `json:"http"`
}

type KongConsumer struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
}

type KongInput struct {
	Request  KongRequest   `json:"request"`
	Consumer *KongConsumer `json:"consumer,omitempty"`
	ClientIP string        `json:"client_ip,omitempty"`
}

// KongQuery is the callback body.
type KongQuery struct {
	Input KongInput `json:"input"`
}

// KongResult is the boolean-only verdict Kong expects.
type KongResult struct {
	Result bool `json:"result"`
}
