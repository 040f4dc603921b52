// Package gateway implements the request pipeline. A request passes
// admission control, is fingerprinted, checked against the response
// cache, collapsed onto any identical in-flight execution, and finally
// sent upstream through the credential rotation. Only admission denials
// and pool exhaustion surface to clients in full; upstream failures
// collapse to a generic error at the HTTP boundary.
package gateway
