package soroban

// Event is one contract event as returned by the getEvents RPC. Topic
// segments and the value payload are opaque base64-encoded XDR tokens;
// decoding is the classifier's problem, not the transport's.
type Event struct {
	ID                       string   `json:"id"`
	Type                     string   `json:"type"`
	Ledger                   uint32   `json:"ledger"`
	LedgerClosedAt           string   `json:"ledgerClosedAt"`
	ContractID               string   `json:"contractId"`
	PagingToken              string   `json:"pagingToken"`
	Topic                    []string `json:"topic"`
	Value                    string   `json:"value"`
	InSuccessfulContractCall bool     `json:"inSuccessfulContractCall"`
	TxHash                   string   `json:"txHash"`
}

// EventFilter narrows getEvents to specific contracts.
type EventFilter struct {
	Type        string   `json:"type"`
	ContractIDs []string `json:"contractIds"`
}

// EventsRequest is the getEvents query. An absent cursor means "start from
// latest"; the server never replays history in that case.
type EventsRequest struct {
	Filters []EventFilter `json:"filters"`
	Cursor  string        `json:"cursor,omitempty"`
	Limit   int           `json:"limit,omitempty"`
}

// EventsResponse is the getEvents result.
type EventsResponse struct {
	Events       []Event `json:"events"`
	LatestLedger uint32  `json:"latestLedger"`
}

// NewEventsRequest builds a single-contract request. cursor may be empty.
func NewEventsRequest(contractID, cursor string, limit int) EventsRequest {
	return EventsRequest{
		Filters: []EventFilter{{
			Type:        "contract",
			ContractIDs: []string{contractID},
		}},
		Cursor: cursor,
		Limit:  limit,
	}
}
