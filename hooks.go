package riakcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A read observed an expired entry and scheduled its deletion.
	ExpiredOnRead(storageKey string)

	// A store request failed and was contained.
	// op ∈ {"read", "write", "delete", "delete_matched", "exist"}
	StoreError(op, storageKey string, err error)

	// The bucket allowed siblings and New switched allow_mult off.
	DivergenceDisabled(bucket string)

	// A DeleteMatched scan finished (possibly cut short by an enumeration error).
	MatchedDeleted(bucket string, scanned, deleted int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ExpiredOnRead(string)             {}
func (NopHooks) StoreError(string, string, error) {}
func (NopHooks) DivergenceDisabled(string)        {}
func (NopHooks) MatchedDeleted(string, int, int)  {}
