package common

// MatchID identifies a match document in the match store.
type MatchID string

// MatchType selects which bundle item variant and contract call a match
// produces.
type MatchType int

const (
	// MatchOrders is an N-NFT match requiring a constructed synthetic
	// buy order and the matchOrders contract call.
	MatchOrders MatchType = iota
	// MatchOneToOneOrders is a single-NFT match using matchOneToOneOrders.
	MatchOneToOneOrders
)

func (t MatchType) String() string {
	switch t {
	case MatchOrders:
		return "MatchOrders"
	case MatchOneToOneOrders:
		return "MatchOneToOneOrders"
	default:
		return "Unknown"
	}
}

// MatchStatus is the lifecycle status of a match document. The pipeline
// only ever observes documents with Status == Active; any other status
// terminates core responsibility for that id (spec.md §3).
type MatchStatus int

const (
	MatchInactive MatchStatus = iota
	MatchActive
	MatchMatched
	MatchError
)

// MatchState is the status payload merged back onto a match document by
// onInvalidated/onProgress.
type MatchState struct {
	Status  MatchStatus
	Code    string
	Message string
}

// MatchData is the NFT tree a match proposes to fill, keyed by collection
// then token id. It is carried as an ordered NFTSet (see NFTSet) rather
// than a map so that flattening and numMatches accumulation are
// deterministic across repeated runs.
type MatchData struct {
	OrderItems NFTSet
}

// Match references the two orders an off-chain matcher believes can fill
// each other.
type Match struct {
	ID        MatchID
	ListingID OrderID // the sell-side order id
	OfferID   OrderID // the buy-side order id
	MatchData MatchData
	Type      MatchType
	State     MatchState
}

// FlattenNFTs computes the flattened NFT set used as input to a constructed
// order, plus numMatches, per spec.md §3: iterate collections in insertion
// order, emit {collection, tokens} even when tokens is empty, and
// accumulate numMatches as the sum over collections of max(1, len(tokens)).
// Empty token lists count as 1 so that collection-level matches (the
// listing is against a whole collection rather than specific token ids)
// are preserved.
func FlattenNFTs(items NFTSet) (flattened NFTSet, numMatches int64) {
	flattened = make(NFTSet, len(items))
	for i, col := range items {
		tokens := make([]TokenAmount, len(col.Tokens))
		copy(tokens, col.Tokens)
		flattened[i] = NFTCollection{Collection: col.Collection, Tokens: tokens}
		n := len(col.Tokens)
		if n == 0 {
			n = 1
		}
		numMatches += int64(n)
	}
	return flattened, numMatches
}
