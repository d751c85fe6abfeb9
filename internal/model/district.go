package model

// District is a canonical district record synced from the upstream open-data API.
// DistrictID is the natural identity; records without it (or without a name)
// never reach the store.
type District struct {
	DistrictID   string   `json:"district_id"`
	DistrictName string   `json:"district_name"`
	StateName    string   `json:"state_name"`
	StateCode    string   `json:"state_code"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Population   *int64   `json:"population,omitempty"`
	Area         *float64 `json:"area,omitempty"`
	IsActive     bool     `json:"is_active"`
}
