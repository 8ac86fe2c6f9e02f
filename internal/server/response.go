package server

import "github.com/copyleftdev/ipoptgo/internal/optimization"

type startResponse struct {
	ID     string    `json:"optimization_id"`
	Status JobStatus `json:"status"`
}

type statusResponse struct {
	ID         string               `json:"optimization_id"`
	Status     JobStatus            `json:"status"`
	Problem    string               `json:"problem"`
	StartTime  string               `json:"start_time"`
	LastUpdate string               `json:"last_update"`
	EndTime    string               `json:"end_time,omitempty"`
	Result     *optimization.Result `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
}
