package transit

import "context"

// DataSource is the capability every transit backend variant exposes.
// Implementations adapt their raw payloads into the canonical shapes.
type DataSource interface {
	// Lines returns every line of the network.
	Lines(ctx context.Context) ([]Line, error)
	// StationsInBounds returns the stations inside box. Order is unspecified.
	StationsInBounds(ctx context.Context, box BoundingBox) ([]Station, error)
	// Arrivals returns live arrival estimates for a station.
	Arrivals(ctx context.Context, stationID string) ([]ArrivalEstimate, error)
}

// VehicleSource is implemented by sources that expose live vehicle positions.
type VehicleSource interface {
	LineVehicles(ctx context.Context, lineID string) ([]Vehicle, error)
}

// LineDetailer is implemented by sources that can describe one line with its stations.
type LineDetailer interface {
	LineDetails(ctx context.Context, lineID string) (*LineDetails, error)
}

// BulkLoader loads a whole network at once, for sources without a bounded query.
type BulkLoader interface {
	LoadAll(ctx context.Context) (*Snapshot, error)
}

// ArrivalSource is the subset of DataSource used by the arrival resolver.
type ArrivalSource interface {
	Arrivals(ctx context.Context, stationID string) ([]ArrivalEstimate, error)
}

// StationFetcher is the subset of DataSource used by viewport sessions.
type StationFetcher interface {
	StationsInBounds(ctx context.Context, box BoundingBox) ([]Station, error)
}
