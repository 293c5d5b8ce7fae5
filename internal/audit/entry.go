package audit

// Decision is the gate outcome recorded for one network event.
const (
	DecisionAdmit = "admit"
	DecisionBlock = "block"
)

// Entry is one line in the hash-chained JSONL decision log. All fields are
// scalars (no map[string]any) to guarantee deterministic json.Marshal field
// order for reproducible hashing.
type Entry struct {
	Timestamp  string  `json:"ts"`
	Host       string  `json:"host"`
	Decision   string  `json:"decision"`
	Correlated bool    `json:"correlated"`
	Confidence float64 `json:"confidence"`
	Risk       string  `json:"risk,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	PrevHash   string  `json:"prev_hash"`
}
