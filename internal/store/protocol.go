package store

// JSON protocol for the store daemon over a Unix domain or TCP socket.
// One request -> one response using json.Encoder/Decoder per connection.

const (
	OpGet    = "get"
	OpGetEx  = "getex"
	OpSet    = "set"
	OpSetEx  = "setex"
	OpTouch  = "touch"
	OpDelete = "del"
	OpTTL    = "ttl"
	OpKeys   = "keys"
	OpTx     = "tx"
	OpStats  = "stats"
	OpPing   = "ping"
)

type Request struct {
	Op         string `json:"op"`
	Key        string `json:"key,omitempty"`
	Value      []byte `json:"value,omitempty"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
	Prefix     string `json:"prefix,omitempty"`
	// Version and Ops carry an optimistic transaction: the server applies
	// Ops to Key only if the key's version still equals Version.
	Version uint64 `json:"version,omitempty"`
	Ops     []TxOp `json:"ops,omitempty"`
}

// TxOp is one buffered mutation inside a "tx" request. It targets the
// transaction's watched key; Op is one of set, setex, touch or del.
type TxOp struct {
	Op         string `json:"op"`
	Value      []byte `json:"value,omitempty"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
}

type Response struct {
	OK         bool              `json:"ok"`
	Value      []byte            `json:"value,omitempty"`
	Version    uint64            `json:"version,omitempty"`
	TTLSeconds int64             `json:"ttl_seconds,omitempty"`
	Keys       []string          `json:"keys,omitempty"`
	Stats      map[string]uint64 `json:"stats,omitempty"`
	Error      string            `json:"error,omitempty"`
}
