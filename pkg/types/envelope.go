package types

import "time"

// Transport identifies which intake path produced a RawEnvelope.
type Transport string

const (
	TransportEdgeHTTP  Transport = "edge_http"
	TransportCloudHTTP Transport = "cloud_http"
	TransportMQTT      Transport = "mqtt"
)

// RawEnvelope is the bus-transit wrapper around a vendor payload. It lives
// from enqueue at the edge/cloud intake to successful write at the ingest
// consumer, after which it is deleted from the bus.
type RawEnvelope struct {
	ReceivedAt  time.Time `json:"receivedAt"`
	Transport   Transport `json:"transport"`
	Token       string    `json:"token"`
	SourceIP    string    `json:"sourceIp,omitempty"`
	VendorBody  []byte    `json:"vendorPayload"`
	ContentType string    `json:"contentType"`
}
