package queue

const (
	// TypeIndexAPI runs a full ingestion pipeline for one catalog API.
	TypeIndexAPI = "index:api"
	// TypeCacheSweep flips cache entries past their TTL to expired.
	TypeCacheSweep = "cache:sweep"
)

type IndexAPIPayload struct {
	APIName string `json:"api_name"`
	Force   bool   `json:"force"`
}
