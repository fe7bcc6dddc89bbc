package model

// QueryType enumerates the kinds of query the portal accepts.
type QueryType string

const (
	QueryExact QueryType = "exact"
	QueryRange QueryType = "range"
	QueryAll   QueryType = "all"
	QueryWrite QueryType = "write"
)

// QueryRequest is the client-facing request accepted by QueryData.
type QueryRequest struct {
	QueryID     string
	ClientID    string
	Type        QueryType
	Key         int32
	RangeStart  int32
	RangeEnd    int32
	StringParam string // value for QueryWrite
}

// QueryResponse is the client-facing reply produced by QueryData.
type QueryResponse struct {
	QueryID          string
	Results          []DataItem
	Success          bool
	ErrorMessage     string
	Timestamp        int64
	ProcessingTimeMs int64
	FromCache        bool
}

// DataRequest is the inter-node request carried by GatherData.
type DataRequest struct {
	QueryRequest

	RequesterID    string
	HopCount       int32
	MaxHops        int32
	RoutePath      string
	VisitedNodes   []string
	ForwardToPeers bool
	// QueryContext carries the originating query's provenance (origin
	// node, client id) along with the request as it's forwarded hop to hop.
	QueryContext map[string]string
}

// DataResponse is the inter-node reply produced by GatherData.
type DataResponse struct {
	RequestID        string
	DataItems        []DataItem
	ResponderID      string
	RoutePath        string
	ContributingNodes []string
	Success          bool
	ErrorMessage     string
	ProcessingTimeMs int64
}

// Visited reports whether nodeID already appears in VisitedNodes.
func (r *DataRequest) Visited(nodeID string) bool {
	for _, v := range r.VisitedNodes {
		if v == nodeID {
			return true
		}
	}
	return false
}

// WithHop returns a copy of the request annotated for emission to the
// next hop: nodeID appended to VisitedNodes and RoutePath, HopCount
// incremented.
func (r *DataRequest) WithHop(nodeID string) DataRequest {
	next := *r
	next.VisitedNodes = append(append([]string{}, r.VisitedNodes...), nodeID)
	if next.RoutePath == "" {
		next.RoutePath = nodeID
	} else {
		next.RoutePath = next.RoutePath + "->" + nodeID
	}
	next.HopCount = r.HopCount + 1
	return next
}
